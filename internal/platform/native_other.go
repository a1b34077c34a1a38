//go:build !(linux || freebsd || openbsd || netbsd || dragonfly || windows)

package platform

import (
	"fmt"
	"log/slog"
	"runtime"
)

func newNative(*slog.Logger) (Backend, error) {
	return nil, fmt.Errorf("%w: no native window system for %s, use the memory backend", ErrUnsupported, runtime.GOOS)
}
