// Package archive builds a Walk abstraction on top of zip book containers.
package archive

import (
	"fmt"
	"path"
	"strings"

	fixzip "github.com/hidez8891/zip"
)

// WalkFunc is the type of the function called for each regular file in the
// container visited by Walk. The container argument is the path passed to
// Walk, file the matching entry. A non-nil error stops the walk and is
// returned to the caller.
type WalkFunc func(container string, file *fixzip.File) error

// Walk visits every regular file in the zip container whose name starts
// with prefix, in archive order. An entry with an absolute name or a path
// traversal component aborts the walk.
func Walk(container, prefix string, walkFn WalkFunc) error {
	r, err := fixzip.OpenReader(container)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if !IsSafePath(f.Name) {
			return fmt.Errorf("container entry %q: unsafe path", f.Name)
		}
		if f.FileInfo().IsDir() || !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		if err := walkFn(container, f); err != nil {
			return err
		}
	}
	return nil
}

// IsSafePath reports whether the entry name stays inside an extraction
// directory: relative, forward slashes, no ".." components.
func IsSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
