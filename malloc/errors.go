package malloc

import "errors"

// ErrRequestTooLarge is returned when a requested size cannot be
// represented as an allocatable chunk size (see requestToChunkSize).
var ErrRequestTooLarge = errors.New("malloc: requested size too large")

// ErrOutOfMemory names an out-of-memory condition. No code path in this
// package returns it: a failure to acquire memory from the OS, whether
// growing an arena's top chunk or mapping an oversize chunk, is
// returned as the error the sysmem.Source reported.
var ErrOutOfMemory = errors.New("malloc: out of memory")

// ErrUnknownTuningParam is returned by Allocator.Tuning for a param
// name outside spec.md §6's named set.
var ErrUnknownTuningParam = errors.New("malloc: unknown tuning parameter")

// ErrInvalidTuningValue is returned by Allocator.Tuning when value is
// out of range for the named parameter.
var ErrInvalidTuningValue = errors.New("malloc: invalid tuning value")
