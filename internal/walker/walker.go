// Package walker enumerates local files and turns eligible images into assets.
package walker

import (
	"errors"
	"iter"
	"os"

	"github.com/spf13/afero"
)

var errStopped = errors.New("walk stopped")

// Walk lazily yields every regular file below root. Directories, symlinks
// and other special files are never yielded. Paths are joined onto root, so
// they are absolute whenever root is.
//
// A failure to read a directory is yielded as (dir, err); the walk goes on
// with the next entry if the consumer keeps iterating. A failure on root
// itself ends the sequence. Every call starts a fresh enumeration.
func Walk(fsys afero.Fs, root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if !yield(path, err) {
					return errStopped
				}
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			if !yield(path, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(root, err)
		}
	}
}
