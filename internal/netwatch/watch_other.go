//go:build !linux && !darwin && !windows

package netwatch

import "context"

func watch(context.Context, func()) error {
	return ErrUnsupported
}
