package jobs

import "scribe/internal/services"

// Store errors alias the shared markers so callers can match either.
var (
	ErrJobNotFound       = services.ErrJobNotFound
	ErrDuplicateJobID    = services.ErrDuplicateJobID
	ErrInvalidTransition = services.ErrInvalidTransition
	ErrStoreFull         = services.ErrStoreFull
)
