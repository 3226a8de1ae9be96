// Package worker executes claimed jobs through the staged fetch pipeline
// under a bounded pool. The pipeline owns everything between a successful
// claim and the job's terminal transition or re-arm.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"fetchd/internal/authprofiles"
	"fetchd/internal/config"
	"fetchd/internal/fetcherr"
	"fetchd/internal/logging"
	"fetchd/internal/notify"
	"fetchd/internal/queue"
	"fetchd/internal/retrypolicy"
	"fetchd/internal/sources"
	"fetchd/internal/storagepaths"
)

// Stage names recorded on the job event timeline.
const (
	StageMetadataFetch   = "METADATA_FETCH"
	StageCapabilityCheck = "CAPABILITY_CHECK"
	StageDownload        = "DOWNLOAD"
	StagePostprocess     = "POSTPROCESS"
	StageOutputValidate  = "OUTPUT_VALIDATE"
)

// heartbeatInterval refreshes updated_at on long transfers so the staleness
// scan does not reclaim a job that is still making progress.
const heartbeatInterval = 30 * time.Second

// Pipeline runs one job from claim to terminal state.
type Pipeline struct {
	store    *queue.Store
	router   *sources.Router
	registry *authprofiles.Registry
	policy   *retrypolicy.Policy
	layout   *storagepaths.Layout
	notifier notify.Service
	cfg      *config.Config
	logger   *slog.Logger
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(
	store *queue.Store,
	router *sources.Router,
	registry *authprofiles.Registry,
	policy *retrypolicy.Policy,
	layout *storagepaths.Layout,
	notifier notify.Service,
	cfg *config.Config,
	logger *slog.Logger,
) *Pipeline {
	if notifier == nil {
		notifier = notify.NewService(cfg)
	}
	return &Pipeline{
		store:    store,
		router:   router,
		registry: registry,
		policy:   policy,
		layout:   layout,
		notifier: notifier,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "worker"),
	}
}

// Run claims the job into RUNNING and executes the staged pipeline. It never
// returns an error for per-job failures; those are absorbed into the job's
// own retry or terminal state. An error return means the job could not be
// claimed at all.
func (p *Pipeline) Run(ctx context.Context, job *queue.Job, workerID int) error {
	claimed, err := p.store.Transition(ctx, job.ID, queue.StatusQueued, queue.StatusRunning, nil)
	if err != nil {
		if errors.Is(err, queue.ErrStatusConflict) || errors.Is(err, queue.ErrNotFound) {
			// Lost the claim race; another worker or an operator moved it.
			return nil
		}
		return fmt.Errorf("claim job %d: %w", job.ID, err)
	}
	job = claimed

	if err := p.store.AppendEvent(ctx, job.ID, queue.EventWorkerAssigned, map[string]any{
		"worker_id": workerID,
	}); err != nil {
		p.logger.Warn("record worker assignment failed", logging.Args(
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err),
		)...)
	}

	requestID := uuid.NewString()
	log := p.logger.With(logging.Args(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSource, string(job.SourceType)),
		logging.String(logging.FieldRequestID, requestID),
	)...)
	log.Info("job started", logging.Args(
		logging.Int("worker_id", workerID),
		logging.Int("retry_count", job.RetryCount),
	)...)

	result, runErr := p.execute(ctx, job, requestID, log)
	if runErr != nil {
		p.handleFailure(ctx, job, runErr, log)
		return nil
	}
	p.handleSuccess(ctx, job, result, log)
	return nil
}

// attemptResult carries the artifacts of a successful pipeline pass.
type attemptResult struct {
	finalTitle string
	finalPath  string
	sizeBytes  int64
}

func (p *Pipeline) execute(ctx context.Context, job *queue.Job, requestID string, log *slog.Logger) (*attemptResult, error) {
	capability, err := p.router.CapabilityFor(job.SourceType)
	if err != nil {
		return nil, err
	}

	fctx := sources.FetchContext{RequestID: requestID}
	profile, err := p.registry.Resolve(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("resolve auth profile: %w", err)
	}
	if profile != nil {
		fctx.CredentialFile = profile.CredentialFile
		log = log.With(logging.Args(logging.String("auth_profile", profile.ID))...)
	}

	// Stage 1: metadata.
	var meta *sources.MetadataResult
	err = p.runStage(ctx, job, StageMetadataFetch, p.metadataTimeout(), log, func(stageCtx context.Context) error {
		var stageErr error
		meta, stageErr = capability.FetchMetadata(stageCtx, job.URL, fctx)
		return stageErr
	})
	if err != nil {
		p.reportAuthOutcome(ctx, profile, err)
		return nil, err
	}

	// Stage 2: capability check. Failing here costs no bandwidth.
	maxBytes := p.maxBytes()
	err = p.runStage(ctx, job, StageCapabilityCheck, 0, log, func(context.Context) error {
		if _, ok := sources.SelectFormat(meta, job.JobType, job.RequestedQuality, maxBytes); !ok {
			return fetcherr.Wrap(fetcherr.ErrFormatNotFound, StageCapabilityCheck, "select_format",
				fmt.Sprintf("no %s format satisfies quality %q within size limit", job.JobType, job.RequestedQuality), nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stage 3: transfer, with a heartbeat so the staleness scan leaves us be.
	var download *sources.DownloadResult
	err = p.runStage(ctx, job, StageDownload, p.downloadTimeout(), log, func(stageCtx context.Context) error {
		stopHeartbeat := p.startHeartbeat(stageCtx, job.ID)
		defer stopHeartbeat()

		opts := sources.DownloadOptions{
			JobType:          job.JobType,
			RequestedQuality: job.RequestedQuality,
			TargetPath:       p.layout.TempPathFor(job.ID),
			MaxBytes:         maxBytes,
		}
		var stageErr error
		download, stageErr = capability.Download(stageCtx, job.URL, opts, fctx)
		return stageErr
	})
	if err != nil {
		p.reportAuthOutcome(ctx, profile, err)
		return nil, err
	}
	if profile != nil {
		if reportErr := p.registry.ReportSuccess(ctx, profile); reportErr != nil {
			log.Warn("record auth success failed", logging.Args(logging.Error(reportErr))...)
		}
	}

	// Stage 4: settle the title and remember the artifact location.
	title := meta.Title
	err = p.runStage(ctx, job, StagePostprocess, p.postprocessTimeout(), log, func(context.Context) error {
		if download.Title != "" {
			title = download.Title
		}
		if title == "" {
			title = fmt.Sprintf("job-%d", job.ID)
		}
		job.FilePath = download.FilePath
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stage 5: the artifact must exist and be non-empty before it counts.
	var size int64
	err = p.runStage(ctx, job, StageOutputValidate, 0, log, func(context.Context) error {
		info, statErr := os.Stat(job.FilePath)
		if statErr != nil {
			return fetcherr.Wrap(fetcherr.ErrUnknown, StageOutputValidate, "stat_output",
				"downloaded artifact missing", statErr)
		}
		if info.Size() == 0 {
			return fetcherr.Wrap(fetcherr.ErrUnknown, StageOutputValidate, "check_size",
				"downloaded artifact is empty", nil)
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			return fetcherr.Wrap(fetcherr.ErrSizeLimit, StageOutputValidate, "check_size",
				fmt.Sprintf("artifact is %d bytes, limit is %d", info.Size(), maxBytes), nil)
		}
		size = info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	finalPath, err := p.layout.Archive(job, title)
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.ErrUnknown, StageOutputValidate, "archive_move",
			"move artifact to archive", err)
	}
	return &attemptResult{finalTitle: title, finalPath: finalPath, sizeBytes: size}, nil
}

// runStage wraps one stage execution with timeline events and an optional
// deadline. A zero timeout means the stage runs under the parent context.
func (p *Pipeline) runStage(ctx context.Context, job *queue.Job, stage string, timeout time.Duration, log *slog.Logger, fn func(context.Context) error) error {
	if err := p.store.AppendEvent(ctx, job.ID, queue.EventStageStarted, map[string]any{"stage": stage}); err != nil {
		log.Warn("record stage start failed", logging.Args(
			logging.String(logging.FieldStage, stage),
			logging.Error(err),
		)...)
	}

	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	err := fn(stageCtx)
	elapsed := time.Since(started)
	if err != nil {
		if stageCtx.Err() == context.DeadlineExceeded {
			err = fetcherr.Wrap(fetcherr.ErrTimeout, stage, "deadline",
				fmt.Sprintf("stage exceeded %s", timeout), err)
		}
		errType := fetcherr.Classify(err)
		if eventErr := p.store.AppendEvent(ctx, job.ID, queue.EventStageFailed, map[string]any{
			"stage":      stage,
			"error_type": string(errType),
			"error":      err.Error(),
		}); eventErr != nil {
			log.Warn("record stage failure failed", logging.Args(logging.Error(eventErr))...)
		}
		log.Error("stage failed", logging.Args(
			logging.String(logging.FieldStage, stage),
			logging.String(logging.FieldErrorType, string(errType)),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)...)
		return err
	}

	if eventErr := p.store.AppendEvent(ctx, job.ID, queue.EventStageCompleted, map[string]any{
		"stage":       stage,
		"duration_ms": elapsed.Milliseconds(),
	}); eventErr != nil {
		log.Warn("record stage completion failed", logging.Args(logging.Error(eventErr))...)
	}
	log.Info("stage completed", logging.Args(
		logging.String(logging.FieldStage, stage),
		logging.Duration("elapsed", elapsed),
	)...)

	// Refresh updated_at between stages so long pipelines are never stale.
	if touchErr := p.store.Touch(ctx, job.ID); touchErr != nil {
		log.Warn("refresh job heartbeat failed", logging.Args(logging.Error(touchErr))...)
	}
	return nil
}

func (p *Pipeline) handleSuccess(ctx context.Context, job *queue.Job, result *attemptResult, log *slog.Logger) {
	_, err := p.store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusCompleted, &queue.TransitionOptions{
		FinalTitle: result.finalTitle,
		FilePath:   result.finalPath,
		Metadata:   map[string]any{"size_bytes": result.sizeBytes},
	})
	if err != nil {
		log.Error("finalize completed job failed", logging.Args(logging.Error(err))...)
		return
	}
	if err := p.store.MarkArchived(ctx, job.ID, result.finalPath); err != nil {
		log.Warn("record archive failed", logging.Args(logging.Error(err))...)
	}
	log.Info("job completed", logging.Args(
		logging.String("title", result.finalTitle),
		logging.String("file", result.finalPath),
		logging.Int64("size_bytes", result.sizeBytes),
	)...)
	if err := p.notifier.NotifyJobCompleted(ctx, result.finalTitle, result.finalPath); err != nil {
		log.Warn("completion notification failed", logging.Args(logging.Error(err))...)
	}
}

func (p *Pipeline) handleFailure(ctx context.Context, job *queue.Job, runErr error, log *slog.Logger) {
	p.layout.CleanupTemp(job.ID)

	errType := fetcherr.Classify(runErr)
	message := runErr.Error()
	decision := p.policy.Evaluate(errType, job.RetryCount)

	switch decision.Outcome {
	case retrypolicy.OutcomeRetry:
		notBefore := time.Now().UTC().Add(decision.Delay)
		rearmed, err := p.store.ReArmForRetry(ctx, job.ID, errType, message, notBefore)
		if err != nil {
			log.Error("re-arm for retry failed", logging.Args(logging.Error(err))...)
			return
		}
		if err := p.store.AppendEvent(ctx, job.ID, queue.EventRetryScheduled, map[string]any{
			"attempt":    rearmed.RetryCount,
			"delay_s":    int(decision.Delay.Seconds()),
			"error_type": string(errType),
		}); err != nil {
			log.Warn("record retry schedule failed", logging.Args(logging.Error(err))...)
		}
		// No push here. Transient failures stay quiet until the job either
		// completes or exhausts its retries.
		log.Warn("retry scheduled", logging.Args(
			logging.String(logging.FieldErrorType, string(errType)),
			logging.Int("attempt", rearmed.RetryCount),
			logging.Duration("delay", decision.Delay),
		)...)

	case retrypolicy.OutcomeSkip, retrypolicy.OutcomeExhausted:
		eventType := queue.EventRetrySkipped
		if decision.Outcome == retrypolicy.OutcomeExhausted {
			eventType = queue.EventMaxRetriesReached
		}
		_, err := p.store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusFailed, &queue.TransitionOptions{
			ErrorType:    errType,
			ErrorMessage: message,
		})
		if err != nil {
			log.Error("finalize failed job failed", logging.Args(logging.Error(err))...)
			return
		}
		if err := p.store.AppendEvent(ctx, job.ID, eventType, map[string]any{
			"error_type":  string(errType),
			"retry_count": job.RetryCount,
		}); err != nil {
			log.Warn("record retry decision failed", logging.Args(logging.Error(err))...)
		}
		log.Error("job failed", logging.Args(
			logging.String(logging.FieldErrorType, string(errType)),
			logging.Int("retry_count", job.RetryCount),
			logging.Error(runErr),
		)...)
		title := job.FinalTitle
		if title == "" {
			title = job.URL
		}
		if err := p.notifier.NotifyJobFailed(ctx, title, string(errType), message); err != nil {
			log.Warn("failure notification failed", logging.Args(logging.Error(err))...)
		}
	}
}

// reportAuthOutcome degrades the profile's health when the failure was an
// auth rejection. Other failure kinds say nothing about credentials.
func (p *Pipeline) reportAuthOutcome(ctx context.Context, profile *queue.AuthProfile, err error) {
	if profile == nil {
		return
	}
	if fetcherr.Classify(err) != queue.ErrorTypeAuth {
		return
	}
	if reportErr := p.registry.ReportAuthFailure(ctx, profile); reportErr != nil {
		p.logger.Warn("record auth failure failed", logging.Args(logging.Error(reportErr))...)
	}
}

func (p *Pipeline) startHeartbeat(ctx context.Context, jobID int64) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = p.store.Touch(ctx, jobID)
			}
		}
	}()
	var once func()
	closed := false
	once = func() {
		if !closed {
			closed = true
			close(done)
		}
	}
	return once
}

func (p *Pipeline) metadataTimeout() time.Duration {
	return time.Duration(p.cfg.Pipeline.MetadataTimeout) * time.Second
}

func (p *Pipeline) downloadTimeout() time.Duration {
	return time.Duration(p.cfg.Pipeline.DownloadTimeout) * time.Second
}

func (p *Pipeline) postprocessTimeout() time.Duration {
	return time.Duration(p.cfg.Pipeline.PostprocessTimeout) * time.Second
}

func (p *Pipeline) maxBytes() int64 {
	if p.cfg.Pipeline.MaxFileSizeMB <= 0 {
		return 0
	}
	return int64(p.cfg.Pipeline.MaxFileSizeMB) * 1024 * 1024
}
