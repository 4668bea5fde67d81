//go:build windows

package recording

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"
)

func isPlatformFileInUse(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) || errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
