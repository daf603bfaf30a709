package jetdb

import (
	"github.com/jetfile/jetdb/evaluator"
	"github.com/jetfile/jetdb/internal/pagestore"
)

// CreateOptions configures a brand-new container (spec.md §6's file-header
// fields plus the evaluator hook configuration a caller installs up
// front). The zero value creates the newest supported format version with
// a no-op evaluator.
type CreateOptions struct {
	// Version selects the on-disk format generation. Zero selects V2010,
	// the newest version versionDescriptors knows.
	Version pagestore.FormatVersion

	// Eval configures the evaluator hook API (spec.md §6). A nil Eval
	// field is replaced with evaluator.NoopEvaluator.
	Eval evaluator.Config
}

// OpenOptions configures opening an existing container.
type OpenOptions struct {
	// ReadOnly opens the backing file without permission to write;
	// mutating Database methods fail once a write barrier is attempted.
	ReadOnly bool

	// Eval configures the evaluator hook API. A nil Eval field is
	// replaced with evaluator.NoopEvaluator.
	Eval evaluator.Config
}

func resolvedVersion(v pagestore.FormatVersion) pagestore.FormatVersion {
	if v == 0 {
		return pagestore.V2010
	}
	return v
}

func resolvedEval(cfg evaluator.Config) evaluator.Config {
	if cfg.Eval == nil {
		cfg.Eval = evaluator.NoopEvaluator{}
	}
	return cfg
}
