package config

const (
	defaultStateDir       = "~/.local/share/fetchd/state"
	defaultTmpDir         = "~/.local/share/fetchd/tmp"
	defaultArchiveDir     = "~/.local/share/fetchd/archive"
	defaultAuthProfileDir = "~/.config/fetchd/auth_profiles"
	defaultLogDir         = "~/.local/share/fetchd/logs"

	defaultMaxParallelJobs          = 3
	defaultMaxParallelJobsPerSource = 2
	defaultMaxQueueLength           = 100
	defaultPollInterval             = 5
	defaultErrorRetryInterval       = 10

	defaultMaxRetries = 3

	defaultStaleAfter     = 900
	defaultRecoveryPolicy = RecoveryPolicyFail

	defaultMetadataTimeout    = 60
	defaultDownloadTimeout    = 1800
	defaultPostprocessTimeout = 300
	defaultMaxFileSizeMB      = 2000

	defaultDegradedThreshold = 3

	defaultNtfyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Recovery policy values.
const (
	RecoveryPolicyFail    = "fail"
	RecoveryPolicyRequeue = "requeue"
)

func defaultBackoffTiers() []int {
	return []int{30, 120, 600}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:       defaultStateDir,
			TmpDir:         defaultTmpDir,
			ArchiveDir:     defaultArchiveDir,
			AuthProfileDir: defaultAuthProfileDir,
			LogDir:         defaultLogDir,
		},
		Scheduler: Scheduler{
			MaxParallelJobs:          defaultMaxParallelJobs,
			MaxParallelJobsPerSource: defaultMaxParallelJobsPerSource,
			MaxQueueLength:           defaultMaxQueueLength,
			PollInterval:             defaultPollInterval,
			ErrorRetryInterval:       defaultErrorRetryInterval,
		},
		Retry: Retry{
			MaxRetries:   defaultMaxRetries,
			BackoffTiers: defaultBackoffTiers(),
		},
		Recovery: Recovery{
			StaleAfter: defaultStaleAfter,
			Policy:     defaultRecoveryPolicy,
		},
		Pipeline: Pipeline{
			MetadataTimeout:    defaultMetadataTimeout,
			DownloadTimeout:    defaultDownloadTimeout,
			PostprocessTimeout: defaultPostprocessTimeout,
			MaxFileSizeMB:      defaultMaxFileSizeMB,
		},
		Auth: Auth{
			DegradedThreshold: defaultDegradedThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
