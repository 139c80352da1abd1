package store

import "github.com/jacklau/repopulse/internal/pipeline"

// Compile-time check that *DB satisfies the pipeline's Recorder contract.
var _ pipeline.Recorder = (*DB)(nil)
