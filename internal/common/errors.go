package common

import "errors"

// Sentinel errors shared by the training packages.
// Use errors.Is to check: errors.Is(err, common.ErrEmptyPartition)
var (
	// ErrInvalidArgument reports a malformed config or an index list that
	// references positions outside the base dataset.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIndexOutOfRange reports a lookup outside a view's bounds.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrEmptyPartition reports a train or evaluate call on a partition
	// with zero samples.
	ErrEmptyPartition = errors.New("empty partition")
)
