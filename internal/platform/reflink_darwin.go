//go:build darwin

package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// reflink clones src to dst via clonefile(2) (APFS). clonefile refuses
// to replace an existing destination, so one is removed first; callers
// only reach this point after the overwrite decision allowed it.
func reflink(src, dst string) error {
	err := unix.Clonefile(src, dst, 0)
	if err == unix.EEXIST {
		if rmErr := os.Remove(dst); rmErr != nil {
			return rmErr
		}
		err = unix.Clonefile(src, dst, 0)
	}
	if err != nil {
		return fmt.Errorf("clonefile %s -> %s: %w", src, dst, err)
	}
	return nil
}
