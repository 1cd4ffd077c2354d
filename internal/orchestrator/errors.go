package orchestrator

import "errors"

// ErrCancelled is returned by Execute exactly (optionally wrapped with
// %w for added context) when cooperative cancellation is observed at
// the top of a page iteration.
var ErrCancelled = errors.New("orchestrator: download cancelled")
