//go:build windows

package platform

import "log/slog"

func newNative(logger *slog.Logger) (Backend, error) {
	return newWin32(logger)
}
