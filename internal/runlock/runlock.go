// Package runlock implements the advisory lock that keeps two sync runs from
// working on the same local state at the same time.
//
// The lock is a marker file holding the acquisition time in milliseconds
// since the epoch. A marker older than the stale threshold belongs to a run
// that died without releasing it and is taken over.
package runlock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const DefaultStaleAfter = 5 * time.Minute

// maxTakeovers bounds the retry loop when a marker keeps vanishing and
// reappearing between our stat and our create.
const maxTakeovers = 3

type Lock struct {
	fs         afero.Fs
	clock      clockwork.Clock
	path       string
	staleAfter time.Duration
	guard      *flock.Flock

	// stamp is the marker content written by this Lock, empty when not held
	stamp string
}

type Option func(*Lock)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(l *Lock) { l.clock = c }
}

func WithStaleAfter(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.staleAfter = d
		}
	}
}

// WithFs stores the marker on a different filesystem. The OS level guard is
// only used with afero.OsFs.
func WithFs(fsys afero.Fs) Option {
	return func(l *Lock) { l.fs = fsys }
}

func New(path string, opts ...Option) *Lock {
	l := &Lock{
		fs:         afero.NewOsFs(),
		clock:      clockwork.NewRealClock(),
		path:       path,
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(l)
	}
	if _, ok := l.fs.(*afero.OsFs); ok {
		l.guard = flock.New(path + ".guard")
	}
	return l
}

func (l *Lock) Path() string {
	return l.path
}

// Held reports whether this Lock currently owns the marker.
func (l *Lock) Held() bool {
	return l.stamp != ""
}

// Acquire creates the marker. It returns false without error when a live
// marker from another run exists.
func (l *Lock) Acquire() (bool, error) {
	if l.Held() {
		return true, nil
	}

	if l.guard != nil {
		locked, err := l.guard.TryLock()
		if err != nil {
			return false, fmt.Errorf("lock guard: %w", err)
		}
		if !locked {
			slog.Debug("run lock guard busy", "path", l.guard.Path())
			return false, nil
		}
		defer l.releaseGuard()
	}

	for range maxTakeovers {
		created, err := l.create()
		if err != nil {
			return false, err
		}
		if created {
			return true, nil
		}

		age, ok := l.markerAge()
		if ok && age <= l.staleAfter {
			slog.Debug("run lock held", "path", l.path, "age", age.Round(time.Second))
			return false, nil
		}

		if ok {
			slog.Warn("removing stale run lock", "path", l.path, "age", age.Round(time.Second))
		} else {
			slog.Warn("removing unreadable run lock", "path", l.path)
		}
		if err := l.fs.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("remove stale lock: %w", err)
		}
	}

	return false, fmt.Errorf("acquire %s: marker keeps reappearing", l.path)
}

// Release deletes the marker if this Lock created it. It is safe to call any
// number of times, including when Acquire failed or never ran.
func (l *Lock) Release() error {
	if !l.Held() {
		return nil
	}
	defer func() { l.stamp = "" }()

	data, err := afero.ReadFile(l.fs, l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("read lock: %w", err)
	}

	// another run took the marker over after ours went stale
	if strings.TrimSpace(string(data)) != l.stamp {
		slog.Warn("run lock taken over by another run, leaving it", "path", l.path)
		return nil
	}

	if err := l.fs.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// create writes a fresh marker with O_EXCL. It returns false when a marker
// already exists.
func (l *Lock) create() (bool, error) {
	f, err := l.fs.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("create lock: %w", err)
	}

	stamp := strconv.FormatInt(l.clock.Now().UnixMilli(), 10)
	if _, err := f.WriteString(stamp); err != nil {
		f.Close()
		_ = l.fs.Remove(l.path)
		return false, fmt.Errorf("write lock: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = l.fs.Remove(l.path)
		return false, fmt.Errorf("close lock: %w", err)
	}

	l.stamp = stamp
	return true, nil
}

// markerAge parses the existing marker. ok is false for corrupt or
// unreadable markers and for stamps more than staleAfter in the future,
// which are then treated as absent.
func (l *Lock) markerAge() (age time.Duration, ok bool) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return 0, false
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || millis <= 0 {
		return 0, false
	}
	age = l.clock.Since(time.UnixMilli(millis))
	// a stamp far in the future would block every run until the clock
	// catches up
	if age < -l.staleAfter {
		return 0, false
	}
	return age, true
}

func (l *Lock) releaseGuard() {
	if err := l.guard.Unlock(); err != nil {
		slog.Warn("release lock guard", "error", err)
		return
	}
	_ = os.Remove(l.guard.Path())
}
