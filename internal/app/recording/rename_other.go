//go:build !windows

package recording

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

func isPlatformFileInUse(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.ETXTBSY)
}
