package walker

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/assetsync/internal/media"
	"github.com/openmined/assetsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// IgnoreFile is read from the sync root, gitignore syntax.
const IgnoreFile = ".assetsyncignore"

var ErrFolderUnreadable = errors.New("folder unreadable")

var defaultIgnoreLines = []string{
	IgnoreFile,
	// OS
	".DS_Store",
	"._*",
	"Thumbs.db",
	"desktop.ini",
	// editors and tools
	".git",
	"*.tmp",
	"*.swp",
	"*~",
}

// Asset is one eligible image found under a folder.
type Asset struct {
	Path      string
	Key       string
	Size      int64
	ModTime   time.Time
	MediaType media.Type
}

func (a *Asset) String() string {
	return a.Key
}

// Discoverer finds assets below configured folders of a sync root.
type Discoverer struct {
	fs      afero.Fs
	root    string
	ignore  *gitignore.GitIgnore
	exclude []string
}

func NewDiscoverer(fsys afero.Fs, root string, exclude []string) (*Discoverer, error) {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	lines := append([]string{}, defaultIgnoreLines...)
	custom, err := readIgnoreFile(fsys, filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil, err
	}
	if len(custom) > 0 {
		slog.Info("loaded ignore file", "path", filepath.Join(root, IgnoreFile), "rules", len(custom))
	}
	lines = append(lines, custom...)

	return &Discoverer{
		fs:      fsys,
		root:    root,
		ignore:  gitignore.CompileIgnoreLines(lines...),
		exclude: exclude,
	}, nil
}

// Assets yields the eligible images of one folder. Errors wrapping
// ErrFolderUnreadable mean the folder itself could not be enumerated and the
// caller should stop; any other error concerns a single path below it.
func (d *Discoverer) Assets(folder string) iter.Seq2[*Asset, error] {
	dir := filepath.Join(d.root, filepath.FromSlash(folder))

	return func(yield func(*Asset, error) bool) {
		info, err := d.fs.Stat(dir)
		if err != nil {
			yield(nil, fmt.Errorf("%w: %s: %w", ErrFolderUnreadable, folder, err))
			return
		}
		if !info.IsDir() {
			yield(nil, fmt.Errorf("%w: %s is not a directory", ErrFolderUnreadable, folder))
			return
		}

		// afero.Walk does not descend into a symlinked root
		dir, err := d.resolveDir(dir)
		if err != nil {
			yield(nil, fmt.Errorf("%w: %s: %w", ErrFolderUnreadable, folder, err))
			return
		}

		for p, err := range Walk(d.fs, dir) {
			if err != nil {
				if p == dir {
					err = fmt.Errorf("%w: %s: %w", ErrFolderUnreadable, folder, err)
				}
				if !yield(nil, err) {
					return
				}
				continue
			}

			asset, err := d.assetFor(folder, dir, p)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if asset == nil {
				continue
			}
			if !yield(asset, nil) {
				return
			}
		}
	}
}

// resolveDir returns the directory a symlinked folder points at, or dir
// itself when it is not a link.
func (d *Discoverer) resolveDir(dir string) (string, error) {
	lstater, ok := d.fs.(afero.Lstater)
	if !ok {
		return dir, nil
	}
	info, _, err := lstater.LstatIfPossible(dir)
	if err != nil {
		return "", err
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return dir, nil
	}

	if _, ok := d.fs.(*afero.OsFs); ok {
		return filepath.EvalSymlinks(dir)
	}

	reader, ok := d.fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("cannot read link %s", dir)
	}
	target, err := reader.ReadlinkIfPossible(dir)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(dir), target)
	}
	return target, nil
}

// assetFor returns nil for files that are ignored or not images.
func (d *Discoverer) assetFor(folder, dir, p string) (*Asset, error) {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return nil, fmt.Errorf("relative path %s: %w", p, err)
	}
	key := LogicalKey(folder, rel)

	if d.ignore.MatchesPath(key) {
		slog.Debug("ignored", "key", key)
		return nil, nil
	}
	for _, pattern := range d.exclude {
		if ok, _ := doublestar.Match(pattern, key); ok {
			slog.Debug("excluded", "key", key, "pattern", pattern)
			return nil, nil
		}
	}

	mt := media.FromPath(p)
	if !mt.Supported() {
		return nil, nil
	}

	info, err := d.fs.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	return &Asset{
		Path:      p,
		Key:       key,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		MediaType: mt,
	}, nil
}

// LogicalKey builds the remote object key: the folder name followed by the
// slash separated path relative to that folder.
func LogicalKey(folder, rel string) string {
	return path.Join(strings.Trim(folder, "/"), utils.NormPath(rel))
}

func readIgnoreFile(fsys afero.Fs, p string) ([]string, error) {
	f, err := fsys.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}
	return lines, nil
}
