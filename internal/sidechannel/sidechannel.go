// Package sidechannel implements the index-server recovery path (spec §4.2
// step 3): a last-resort snapshot get/set keyed by a well-known string,
// consulted only when a catalog's primary file and its .bak shadow are both
// unusable. Redis and Mongo backends satisfy persistence.SideChannel.
package sidechannel

import (
	"context"
	"errors"
)

// ErrNotFound mirrors persistence.ErrNotFound so callers that only import
// this package don't need the persistence import for a type check.
var ErrNotFound = errors.New("sidechannel: key not found")

// Channel is the interface both backends implement; it is structurally
// identical to persistence.SideChannel so either can be passed directly to
// persistence.WithSideChannel without an adapter.
type Channel interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
}
