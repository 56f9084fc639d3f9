// Package assetsync publishes local images to a remote object store.
//
// A run takes the run lock, walks every configured folder in order and, for
// each image, uploads an optimized copy unless the store already has an
// object under the same key. Assets are processed one at a time.
package assetsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/assetsync/internal/config"
	"github.com/openmined/assetsync/internal/imaging"
	"github.com/openmined/assetsync/internal/media"
	"github.com/openmined/assetsync/internal/report"
	"github.com/openmined/assetsync/internal/runlock"
	"github.com/openmined/assetsync/internal/store"
	"github.com/openmined/assetsync/internal/walker"
	"github.com/spf13/afero"
)

// Locker guards a run against concurrent runs.
type Locker interface {
	Acquire() (bool, error)
	Release() error
}

// Optimizer transforms raw image bytes for publishing.
type Optimizer interface {
	Optimize(raw []byte, mt media.Type) ([]byte, error)
}

type Syncer struct {
	cfg       *config.Config
	store     store.Store
	fs        afero.Fs
	lock      Locker
	optimizer Optimizer
	clock     clockwork.Clock
	log       *slog.Logger
}

type Option func(*Syncer)

func WithFs(fsys afero.Fs) Option {
	return func(s *Syncer) { s.fs = fsys }
}

func WithLock(l Locker) Option {
	return func(s *Syncer) { s.lock = l }
}

func WithOptimizer(o Optimizer) Option {
	return func(s *Syncer) { s.optimizer = o }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Syncer) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

func New(cfg *config.Config, st store.Store, opts ...Option) *Syncer {
	s := &Syncer{
		cfg:   cfg,
		store: st,
		fs:    afero.NewOsFs(),
		clock: clockwork.NewRealClock(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.optimizer == nil {
		s.optimizer = imaging.New(cfg.Sync.MaxWidth, cfg.Sync.Quality)
	}
	if s.lock == nil {
		s.lock = runlock.New(cfg.LockPath,
			runlock.WithFs(s.fs),
			runlock.WithClock(s.clock),
			runlock.WithStaleAfter(cfg.LockStaleAfter),
		)
	}
	return s
}

// Run performs one full sync. Contention on the run lock is not an error:
// the returned summary has Locked set and nothing was done. Per asset
// failures are recorded in the summary; only configuration, lock and folder
// enumeration failures are returned as errors. The lock is always released
// before Run returns.
func (s *Syncer) Run(ctx context.Context) (summary *report.Summary, err error) {
	runID := uuid.NewString()
	log := s.log.With("run", runID[:8])
	summary = report.NewSummary(runID, s.clock.Now())
	defer func() { summary.Finish(s.clock.Now()) }()

	log.Debug("sync", "phase", PhaseLocking)
	acquired, err := s.lock.Acquire()
	if err != nil {
		log.Error("sync", "phase", PhaseAborted, "error", err)
		return summary, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		log.Info("another sync run is active, skipping", "phase", PhaseAborted)
		summary.Locked = true
		return summary, nil
	}

	defer func() {
		log.Debug("sync", "phase", PhaseUnlocking)
		if rerr := s.lock.Release(); rerr != nil {
			log.Error("release run lock", "error", rerr)
			err = errors.Join(err, fmt.Errorf("release run lock: %w", rerr))
		}
	}()

	if err := s.walk(ctx, log, summary); err != nil {
		log.Error("sync", "phase", PhaseAborted, "error", err)
		return summary, err
	}

	in, out := summary.Bytes()
	log.Info("sync", "phase", PhaseDone,
		"uploaded", summary.Count(report.StatusUploaded),
		"skipped", summary.Count(report.StatusSkipped),
		"failed", summary.Count(report.StatusFailed),
		"original", humanize.Bytes(uint64(in)),
		"optimized", humanize.Bytes(uint64(out)),
	)
	return summary, nil
}

func (s *Syncer) walk(ctx context.Context, log *slog.Logger, summary *report.Summary) error {
	discoverer, err := walker.NewDiscoverer(s.fs, s.cfg.Root, s.cfg.Exclude)
	if err != nil {
		return err
	}

	for _, folder := range s.cfg.Folders {
		log.Info("sync", "phase", PhaseWalking, "folder", folder)

		for asset, err := range discoverer.Assets(folder) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, walker.ErrFolderUnreadable) {
				return err
			} else if err != nil {
				log.Warn("sync", "op", "walk", "error", err)
				summary.Add(report.Result{Status: report.StatusFailed, Err: err})
				continue
			}

			summary.Add(s.syncAsset(ctx, log, asset))
		}
	}
	return nil
}

// syncAsset never returns an error, failures end up in the result.
func (s *Syncer) syncAsset(ctx context.Context, log *slog.Logger, asset *walker.Asset) (res report.Result) {
	start := s.clock.Now()
	res = report.Result{Key: asset.Key, Path: asset.Path, OriginalSize: asset.Size}
	defer func() { res.Duration = s.clock.Since(start) }()

	fail := func(op string, err error) report.Result {
		log.Error("sync", "op", op, "key", asset.Key, "error", err)
		res.Status = report.StatusFailed
		res.Err = fmt.Errorf("%s: %w", op, err)
		return res
	}

	exists, err := s.store.Exists(ctx, asset.Key)
	if err != nil {
		return fail("check", err)
	}
	if exists {
		log.Info("sync", "op", "skip", "key", asset.Key, "reason", "already exists")
		res.Status = report.StatusSkipped
		res.Reason = "already exists"
		return res
	}

	raw, err := afero.ReadFile(s.fs, asset.Path)
	if err != nil {
		return fail("read", err)
	}
	res.OriginalSize = int64(len(raw))

	optimized, err := optimize(s.optimizer, raw, asset.MediaType)
	if err != nil {
		return fail("optimize", err)
	}
	res.OptimizedSize = int64(len(optimized))

	attrs := []any{
		"key", asset.Key,
		"size", humanize.Bytes(uint64(res.OriginalSize)),
		"optimized", humanize.Bytes(uint64(res.OptimizedSize)),
		"saved", fmt.Sprintf("%.1f%%", res.Reduction()),
	}

	if s.cfg.DryRun {
		log.Info("sync", append([]any{"op", "dry-run"}, attrs...)...)
		res.Status = report.StatusPlanned
		res.Reason = "dry run"
		return res
	}

	if _, err := s.store.Put(ctx, &store.PutParams{
		Key:          asset.Key,
		Body:         bytes.NewReader(optimized),
		Size:         res.OptimizedSize,
		ContentType:  asset.MediaType.ContentType(),
		CacheControl: s.cfg.CacheControl,
	}); err != nil {
		return fail("upload", err)
	}

	log.Info("sync", append([]any{"op", "upload"}, attrs...)...)
	res.Status = report.StatusUploaded
	return res
}

// optimize converts a panic inside the codecs into an error for this asset.
func optimize(o Optimizer, raw []byte, mt media.Type) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("optimizer panic: %v", r)
		}
	}()
	return o.Optimize(raw, mt)
}

// Phase names the stage of a run in log lines.
type Phase string

const (
	PhaseLocking   Phase = "locking"
	PhaseWalking   Phase = "walking"
	PhaseUnlocking Phase = "unlocking"
	PhaseDone      Phase = "done"
	PhaseAborted   Phase = "aborted"
)

var _ Optimizer = (*imaging.Optimizer)(nil)
var _ Locker = (*runlock.Lock)(nil)
