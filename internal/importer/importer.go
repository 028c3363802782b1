package importer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/gitsource"
	"github.com/conorfennell/knolstudy/internal/parser"
	"github.com/conorfennell/knolstudy/internal/sm2"
)

// Report summarizes one import run.
type Report struct {
	Source   string  `json:"source"`
	Path     string  `json:"path"`
	Parsed   int     `json:"parsed"`
	Added    int     `json:"added"`
	Skipped  int     `json:"skipped"`
	Orphaned int     `json:"orphaned"`
	Errors   []error `json:"-"`
}

// Importer merges markdown decks from a directory or git repository into a snapshot.
type Importer struct {
	params   *sm2.Params
	reposDir string
	logger   *slog.Logger
	now      func() time.Time
	progress io.Writer
}

// New creates an Importer that checks git sources out under reposDir.
func New(params *sm2.Params, reposDir string, logger *slog.Logger, now func() time.Time) *Importer {
	if now == nil {
		now = time.Now
	}
	return &Importer{params: params, reposDir: reposDir, logger: logger, now: now, progress: io.Discard}
}

// Import adds cards found under source to snap. Cards already present keep
// their scheduling state. Cards whose deck no longer contains them are
// counted as orphaned but kept, so review history is never lost.
func (im *Importer) Import(ctx context.Context, snap *domain.Snapshot, source string) (Report, error) {
	dir, err := im.resolve(ctx, source)
	if err != nil {
		return Report{Source: source}, err
	}
	report := Report{Source: source, Path: dir}
	found := make(map[string]bool)
	now := im.now()

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range cards {
			report.Parsed++
			found[card.ID] = true
			if card.Back == "" {
				report.Skipped++
				report.Errors = append(report.Errors, fmt.Errorf("%s: card %q has no answer", path, card.Front))
				continue
			}
			if snap.CardIndex(card.ID) >= 0 {
				continue
			}
			im.logger.Debug("New card found, adding", "id", card.ID, "path", path)
			snap.Cards = append(snap.Cards, im.params.NewCard(card, now))
			report.Added++
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	prefix := filepath.Clean(dir) + string(filepath.Separator)
	for _, c := range snap.Cards {
		if strings.HasPrefix(c.Source, prefix) && !found[c.ID] {
			report.Orphaned++
			im.logger.Info("Orphaned card kept", "id", c.ID, "source", c.Source)
		}
	}

	im.logger.Info("import complete",
		"source", source,
		"parsed_cards", report.Parsed,
		"added", report.Added,
		"orphaned", report.Orphaned,
		"errors", len(report.Errors),
	)
	return report, nil
}

// resolve returns the local directory for source, syncing git repositories first.
func (im *Importer) resolve(ctx context.Context, source string) (string, error) {
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return filepath.Clean(source), nil
	}
	if !gitsource.IsGitURL(source) {
		return "", fmt.Errorf("source %s is neither a directory nor a git URL", source)
	}

	local, err := gitsource.LocalPath(im.reposDir, source)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(local), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	if err := gitsource.Sync(ctx, im.logger, source, local, im.progress); err != nil {
		return "", err
	}
	return filepath.Clean(local), nil
}
