// Package netwatch subscribes to operating system network-change notifications.
//
// Linux listens on an rtnetlink socket, darwin on a PF_ROUTE socket
// and Windows registers a NotifyIpInterfaceChange callback.
// Every notification calls the supplied function; callers are expected to coalesce.
package netwatch

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by Watch on platforms without a native notification source.
var ErrUnsupported = errors.New("netwatch: network change notifications are not supported on this platform")

// readTimeout bounds each blocking socket read so the watch loop can observe context cancellation.
const readTimeout = time.Second

// Watch starts delivering network-change notifications to notify until ctx is done.
// It returns once the subscription is established; delivery happens on a separate goroutine.
func Watch(ctx context.Context, notify func()) error {
	if notify == nil {
		return errors.New("netwatch: notify func cannot be nil")
	}
	return watch(ctx, notify)
}
