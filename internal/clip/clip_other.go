//go:build !linux && !darwin && !windows

package clip

import (
	"fmt"
	"runtime"
)

// New reports ErrUnavailable: there is no clipboard integration for this platform.
func New() (Source, error) {
	return nil, fmt.Errorf("%w: no clipboard integration for %s", ErrUnavailable, runtime.GOOS)
}
