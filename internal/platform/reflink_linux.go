//go:build linux

package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// reflink clones src to dst via the FICLONE ioctl (btrfs, XFS, bcachefs).
// The destination shares storage blocks with the source until either side
// is modified.
func reflink(src, dst string) error {
	srcF, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcF.Close()

	fi, err := srcF.Stat()
	if err != nil {
		return err
	}

	dstF, created, err := openCloneTarget(dst, fi.Mode().Perm())
	if err != nil {
		return err
	}

	if err := unix.IoctlFileClone(int(dstF.Fd()), int(srcF.Fd())); err != nil {
		dstF.Close()
		if created {
			_ = os.Remove(dst)
		}
		return fmt.Errorf("clone %s -> %s: %w", src, dst, err)
	}
	return dstF.Close()
}

// openCloneTarget opens dst for cloning, reporting whether this call
// created it so a failed clone can undo the creation.
func openCloneTarget(dst string, perm os.FileMode) (*os.File, bool, error) {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err == nil {
		return f, true, nil
	}
	if !os.IsExist(err) {
		return nil, false, err
	}
	f, err = os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, perm)
	return f, false, err
}
