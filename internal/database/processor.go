package database

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"repdays/internal/config"
	apperrors "repdays/internal/errors"
	"repdays/internal/periods"
)

// Processor discovers target databases and routes each one to the adapter
// claiming its schema version. Databases are independent units of work; a
// failure in one never stops the rest.
type Processor struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Adapters []Adapter
	// Parallel bounds how many databases are rewritten at once. Values
	// below 1 mean sequential processing.
	Parallel int
}

// NewProcessor wires the three schema adapters in claim order.
func NewProcessor(cfg *config.Config, logger *slog.Logger) *Processor {
	return &Processor{
		Cfg:    cfg,
		Logger: logger,
		Adapters: []Adapter{
			NewLegacyAdapter(cfg, logger),
			NewV3Adapter(cfg, logger),
			NewV31Adapter(cfg, logger),
		},
		Parallel: 1,
	}
}

// Summary counts the outcomes of one batch.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
}

// Discover walks the input directory for SQLite databases.
func (p *Processor) Discover() ([]string, error) {
	const op = "database.Processor.Discover"

	var paths []string
	err := filepath.WalkDir(p.Cfg.Paths.InputSQLiteDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".sqlite" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	return paths, nil
}

// ProcessAll rewrites every discovered database against the period set.
func (p *Processor) ProcessAll(ctx context.Context, set periods.Set, seq periods.Sequence) (Summary, error) {
	const op = "database.Processor.ProcessAll"

	paths, err := p.Discover()
	if err != nil {
		return Summary{}, err
	}
	if len(paths) == 0 {
		p.Logger.Warn("no databases found", slog.String("dir", p.Cfg.Paths.InputSQLiteDir))
		return Summary{}, nil
	}
	if err := os.MkdirAll(p.Cfg.Paths.OutputSQLiteDir, 0o755); err != nil {
		return Summary{}, apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	limit := p.Parallel
	if limit < 1 {
		limit = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	var summary Summary
	for _, path := range paths {
		g.Go(func() error {
			outcome := p.process(ctx, path, set, seq)
			mu.Lock()
			switch outcome {
			case outcomeProcessed:
				summary.Processed++
			case outcomeSkipped:
				summary.Skipped++
			case outcomeFailed:
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	p.Logger.Info("database batch complete",
		slog.Int("processed", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// ProcessPath rewrites a single database instead of the whole input
// directory. A failed rewrite is an error here; there is no batch to keep
// going for.
func (p *Processor) ProcessPath(ctx context.Context, path string, set periods.Set, seq periods.Sequence) error {
	const op = "database.Processor.ProcessPath"

	if err := os.MkdirAll(p.Cfg.Paths.OutputSQLiteDir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	if p.process(ctx, path, set, seq) == outcomeFailed {
		return apperrors.Newf(apperrors.CodeIO, op, "rewrite of %s failed", filepath.Base(path))
	}
	return nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (p *Processor) process(ctx context.Context, path string, set periods.Set, seq periods.Sequence) outcome {
	name := filepath.Base(path)
	outputPath := filepath.Join(p.Cfg.Paths.OutputSQLiteDir, name)

	version, err := p.versionOf(path)
	if err != nil {
		p.Logger.Warn("could not read schema version, database skipped",
			slog.String("database", name),
			slog.String("error", err.Error()))
		return outcomeSkipped
	}

	for _, adapter := range p.Adapters {
		if !adapter.Claims(version) {
			continue
		}
		p.Logger.Info("rewriting database",
			slog.String("database", name),
			slog.String("schema", version.String()),
			slog.String("adapter", adapter.Name()))
		if err := adapter.Apply(ctx, path, outputPath, set, seq); err != nil {
			p.Logger.Error("database rewrite failed",
				slog.String("database", name),
				slog.String("error", err.Error()))
			return outcomeFailed
		}
		return outcomeProcessed
	}

	p.Logger.Info("no adapter claims schema version, database skipped",
		slog.String("database", name),
		slog.String("schema", version.String()))
	return outcomeSkipped
}

func (p *Processor) versionOf(path string) (Version, error) {
	db, err := openDatabase(path)
	if err != nil {
		return Version{}, err
	}
	defer db.Close()
	return DetectVersion(db)
}
