// Package compress writes optimized copies of local images into a second
// directory tree. Nothing is uploaded and no run lock is taken.
package compress

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/assetsync/internal/config"
	"github.com/openmined/assetsync/internal/imaging"
	"github.com/openmined/assetsync/internal/media"
	"github.com/openmined/assetsync/internal/report"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/openmined/assetsync/internal/walker"
	"github.com/spf13/afero"
)

var ErrOverlappingDirs = errors.New("output directory overlaps input directory")

type Optimizer interface {
	Optimize(raw []byte, mt media.Type) ([]byte, error)
}

type Compressor struct {
	fs        afero.Fs
	in        string
	out       string
	exclude   []string
	optimizer Optimizer
	clock     clockwork.Clock
	log       *slog.Logger
}

type Option func(*Compressor)

func WithFs(fsys afero.Fs) Option {
	return func(c *Compressor) { c.fs = fsys }
}

func WithOptimizer(o Optimizer) Option {
	return func(c *Compressor) { c.optimizer = o }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Compressor) { c.clock = clock }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Compressor) { c.log = l }
}

func WithExclude(patterns []string) Option {
	return func(c *Compressor) { c.exclude = patterns }
}

// New prepares a compressor from in to out. Both paths are resolved to
// absolute paths and must not contain one another.
func New(in, out string, img config.ImageConfig, opts ...Option) (*Compressor, error) {
	c := &Compressor{
		fs:    afero.NewOsFs(),
		clock: clockwork.NewRealClock(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.optimizer == nil {
		c.optimizer = imaging.New(img.MaxWidth, img.Quality)
	}

	var err error
	if c.in, err = utils.ResolvePath(in); err != nil {
		return nil, fmt.Errorf("input dir: %w", err)
	}
	if c.out, err = utils.ResolvePath(out); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	if within(c.out, c.in) || within(c.in, c.out) {
		return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingDirs, c.in, c.out)
	}
	return c, nil
}

// Run compresses every image below the input dir. An output that is at
// least as new as its input is left alone. Per file failures end up in the
// summary; only an unreadable input dir or a cancelled context is returned.
func (c *Compressor) Run(ctx context.Context) (*report.Summary, error) {
	runID := uuid.NewString()
	log := c.log.With("run", runID[:8])
	summary := report.NewSummary(runID, c.clock.Now())
	defer func() { summary.Finish(c.clock.Now()) }()

	discoverer, err := walker.NewDiscoverer(c.fs, c.in, c.exclude)
	if err != nil {
		return summary, err
	}

	log.Info("compress", "in", c.in, "out", c.out)
	for asset, err := range discoverer.Assets(".") {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, ctxErr
		}
		if errors.Is(err, walker.ErrFolderUnreadable) {
			return summary, err
		} else if err != nil {
			log.Warn("compress", "op", "walk", "error", err)
			summary.Add(report.Result{Status: report.StatusFailed, Err: err})
			continue
		}
		summary.Add(c.compress(log, asset))
	}

	in, out := summary.Bytes()
	log.Info("compress done",
		"written", summary.Count(report.StatusWritten),
		"skipped", summary.Count(report.StatusSkipped),
		"failed", summary.Count(report.StatusFailed),
		"original", humanize.Bytes(uint64(in)),
		"optimized", humanize.Bytes(uint64(out)),
	)
	return summary, nil
}

func (c *Compressor) compress(log *slog.Logger, asset *walker.Asset) (res report.Result) {
	start := c.clock.Now()
	target := filepath.Join(c.out, filepath.FromSlash(asset.Key))
	res = report.Result{Key: asset.Key, Path: asset.Path, OriginalSize: asset.Size}
	defer func() { res.Duration = c.clock.Since(start) }()

	fail := func(op string, err error) report.Result {
		log.Error("compress", "op", op, "key", asset.Key, "error", err)
		res.Status = report.StatusFailed
		res.Err = fmt.Errorf("%s: %w", op, err)
		return res
	}

	info, err := c.fs.Stat(target)
	if err == nil && !info.ModTime().Before(asset.ModTime) {
		log.Debug("compress", "op", "skip", "key", asset.Key, "reason", "up to date")
		res.Status = report.StatusSkipped
		res.Reason = "up to date"
		return res
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fail("stat", err)
	}

	raw, err := afero.ReadFile(c.fs, asset.Path)
	if err != nil {
		return fail("read", err)
	}
	res.OriginalSize = int64(len(raw))

	optimized, err := optimize(c.optimizer, raw, asset.MediaType)
	if err != nil {
		return fail("optimize", err)
	}
	res.OptimizedSize = int64(len(optimized))

	if err := c.writeFile(target, optimized); err != nil {
		return fail("write", err)
	}

	log.Info("compress", "op", "write", "key", asset.Key,
		"size", humanize.Bytes(uint64(res.OriginalSize)),
		"optimized", humanize.Bytes(uint64(res.OptimizedSize)),
		"saved", fmt.Sprintf("%.1f%%", res.Reduction()),
	)
	res.Status = report.StatusWritten
	return res
}

// optimize converts a panic inside the codecs into an error for this file.
func optimize(o Optimizer, raw []byte, mt media.Type) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("optimizer panic: %v", r)
		}
	}()
	return o.Optimize(raw, mt)
}

// writeFile replaces target through a sibling temp file so a reader never
// sees a partial image.
func (c *Compressor) writeFile(target string, data []byte) error {
	if err := c.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		return err
	}
	if err := c.fs.Rename(tmp, target); err != nil {
		_ = c.fs.Remove(tmp)
		return err
	}
	return nil
}

func within(p, dir string) bool {
	if p == dir {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}
