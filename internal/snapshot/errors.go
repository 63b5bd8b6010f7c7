package snapshot

import "errors"

var (
	// ErrNoSnapshot means no snapshot has been produced yet.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrStaleSnapshot means the latest snapshot is older than the
	// configured staleness window.
	ErrStaleSnapshot = errors.New("latest snapshot is stale")
)
