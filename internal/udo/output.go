package udo

import (
	"path/filepath"

	"github.com/vk/udo/internal/fsutil"
)

// OutputPath chooses where an operation writes its single output. With a
// prefix the name is prefix + invocation ID + "." + ext, and the prefix's
// directory must already exist. Without one the path is allocated from the
// invocation's scratch root. Either way the name is unique per invocation.
func (inv *Invocation) OutputPath(prefix, ext string) (string, error) {
	if prefix != "" {
		path := prefix + inv.ID + "." + ext
		if dir := filepath.Dir(path); !fsutil.DirExists(dir) {
			return "", NewError(KindOutputDirectoryMissing, dir, "output directory does not exist")
		}
		return path, nil
	}
	if inv.Scratch == nil {
		return "", NewError(KindOutputDirectoryMissing, inv.TmpDirPath, "no scratch root for this invocation")
	}
	path, err := inv.Scratch.Allocate(ext)
	if err != nil {
		return "", WrapError(KindOutputDirectoryMissing, inv.TmpDirPath, err)
	}
	return path, nil
}
