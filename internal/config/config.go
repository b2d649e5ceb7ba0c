// Package config holds the handful of tunables the core needs. The
// core has no CLI of its own, so there is no flag.Parse() here —
// callers set fields directly or call FromEnv.
package config

import (
	"os"
	"strconv"

	"github.com/logv/kruda/internal/klog"
)

// Default tunables for the filter engine and allocator.
const (
	DefaultBatchSize   = 1024
	DefaultWorkerCount = 4
)

// Options are the runtime knobs a caller may set on a Heap or an Engine.
// Zero value means "use the default".
type Options struct {
	WorkerCount int
	BatchSize   int
	Debug       bool
}

// Resolve fills in defaults for any zero field.
func (o Options) Resolve() Options {
	out := o
	if out.WorkerCount <= 0 {
		out.WorkerCount = DefaultWorkerCount
	}
	if out.BatchSize <= 0 {
		out.BatchSize = DefaultBatchSize
	}
	return out
}

// FromEnv reads KRUDA_WORKERS / KRUDA_BATCH_SIZE / KRUDA_DEBUG, falling
// back to defaults for anything unset or unparsable.
func FromEnv() Options {
	opts := Options{}

	if v := os.Getenv("KRUDA_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.WorkerCount = n
		} else {
			klog.Warn("invalid KRUDA_WORKERS", v)
		}
	}

	if v := os.Getenv("KRUDA_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.BatchSize = n
		} else {
			klog.Warn("invalid KRUDA_BATCH_SIZE", v)
		}
	}

	if os.Getenv("KRUDA_DEBUG") != "" {
		opts.Debug = true
		klog.Enabled = true
	}

	return opts.Resolve()
}
