//go:build linux || freebsd || openbsd || netbsd || dragonfly

package platform

import "log/slog"

func newNative(logger *slog.Logger) (Backend, error) {
	return newX11(logger)
}
