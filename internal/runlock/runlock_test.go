package runlock

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockPath = "/work/.assetsync.lock"

func newTestLock(fsys afero.Fs, clock clockwork.Clock) *Lock {
	return New(lockPath, WithFs(fsys), WithClock(clock), WithStaleAfter(5*time.Minute))
}

func TestLock_AcquireWritesMillisecondStamp(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := newTestLock(fsys, clock)

	ok, err := l.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, l.Held())

	data, err := afero.ReadFile(fsys, lockPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(clock.Now().UnixMilli(), 10), string(data))

	require.NoError(t, l.Release())
	exists, err := afero.Exists(fsys, lockPath)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, l.Held())
}

func TestLock_LiveMarkerBlocks(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := clockwork.NewFakeClock()

	first := newTestLock(fsys, clock)
	ok, err := first.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(4 * time.Minute)

	second := newTestLock(fsys, clock)
	ok, err = second.Acquire()
	require.NoError(t, err)
	assert.False(t, ok)

	// exactly at the threshold the marker is still live
	clock.Advance(time.Minute)
	ok, err = second.Acquire()
	require.NoError(t, err)
	assert.False(t, ok)

	// releasing a lock that was never obtained leaves the owner's marker alone
	require.NoError(t, second.Release())
	exists, _ := afero.Exists(fsys, lockPath)
	assert.True(t, exists)
}

func TestLock_StaleMarkerIsTakenOver(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := clockwork.NewFakeClock()

	crashed := newTestLock(fsys, clock)
	ok, err := crashed.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(5*time.Minute + time.Millisecond)

	next := newTestLock(fsys, clock)
	ok, err = next.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	data, err := afero.ReadFile(fsys, lockPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(clock.Now().UnixMilli(), 10), string(data))

	// the crashed run coming back must not delete the new owner's marker
	require.NoError(t, crashed.Release())
	exists, _ := afero.Exists(fsys, lockPath)
	assert.True(t, exists)

	require.NoError(t, next.Release())
	exists, _ = afero.Exists(fsys, lockPath)
	assert.False(t, exists)
}

func TestLock_CorruptMarkerTreatedAsAbsent(t *testing.T) {
	cases := map[string]string{
		"garbage":  "not-a-timestamp",
		"empty":    "",
		"negative": "-42",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, lockPath, []byte(content), 0o644))

			l := newTestLock(fsys, clockwork.NewFakeClock())
			ok, err := l.Acquire()
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestLock_FutureMarker(t *testing.T) {
	cases := map[string]struct {
		ahead    time.Duration
		acquired bool
	}{
		"slight skew blocks":   {ahead: time.Minute, acquired: false},
		"at threshold blocks":  {ahead: 5 * time.Minute, acquired: false},
		"far ahead is ignored": {ahead: 5*time.Minute + time.Millisecond, acquired: true},
		"days ahead ignored":   {ahead: 72 * time.Hour, acquired: true},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			clock := clockwork.NewFakeClock()
			stamp := strconv.FormatInt(clock.Now().Add(c.ahead).UnixMilli(), 10)
			require.NoError(t, afero.WriteFile(fsys, lockPath, []byte(stamp), 0o644))

			l := newTestLock(fsys, clock)
			ok, err := l.Acquire()
			require.NoError(t, err)
			assert.Equal(t, c.acquired, ok)

			data, err := afero.ReadFile(fsys, lockPath)
			require.NoError(t, err)
			if c.acquired {
				assert.Equal(t, strconv.FormatInt(clock.Now().UnixMilli(), 10), string(data))
			} else {
				assert.Equal(t, stamp, string(data))
			}
		})
	}
}

func TestLock_MarkerWithTrailingNewline(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := clockwork.NewFakeClock()
	stamp := strconv.FormatInt(clock.Now().UnixMilli(), 10) + "\n"
	require.NoError(t, afero.WriteFile(fsys, lockPath, []byte(stamp), 0o644))

	ok, err := newTestLock(fsys, clock).Acquire()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_ReleaseIsIdempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	l := newTestLock(fsys, clockwork.NewFakeClock())

	require.NoError(t, l.Release())

	ok, err := l.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
}

func TestLock_AcquireTwiceIsNoop(t *testing.T) {
	fsys := afero.NewMemMapFs()
	l := newTestLock(fsys, clockwork.NewFakeClock())

	ok, err := l.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release())
}

func TestLock_OsFsUsesGuard(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".assetsync.lock")

	l := New(path)
	require.NotNil(t, l.guard)

	ok, err := l.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".guard")

	other := New(path)
	ok, err = other.Acquire()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, path)
}
