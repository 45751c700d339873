package llm

import "errors"

var (
	// ErrNoKeys means the pool is empty and the cloud tier is skipped.
	ErrNoKeys = errors.New("no cloud api keys")

	// ErrEmptyReply is returned by a backend that answered with nothing.
	ErrEmptyReply = errors.New("empty reply")
)
