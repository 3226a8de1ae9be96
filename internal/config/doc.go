// Package config loads and validates the TOML configuration that drives the
// daemon: directory layout, scheduler capacity, retry policy, recovery
// behavior, pipeline limits, and logging.
package config
