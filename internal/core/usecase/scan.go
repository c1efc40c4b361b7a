package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

// ChangeDetector compares the corpus with previously indexed hashes and emits
// an index job for every new or modified file. It never writes to the stores.
type ChangeDetector struct {
	corpus     ports.CorpusWalker
	policy     domain.HierarchyPolicy
	extensions map[string]bool
	now        func() time.Time
}

func NewChangeDetector(corpus ports.CorpusWalker, policy domain.HierarchyPolicy) *ChangeDetector {
	return &ChangeDetector{
		corpus:     corpus,
		policy:     policy,
		extensions: domain.SupportedExtensions,
		now:        time.Now,
	}
}

// Detect walks root. known maps stored paths to their content hash. A bad
// root is returned as domain.ErrInvalidConfig; per-file hash failures are
// counted and skipped.
func (d *ChangeDetector) Detect(ctx context.Context, root string, known map[string]string) (domain.ScanReport, error) {
	started := d.now()
	report := domain.ScanReport{Jobs: make([]domain.IndexJob, 0)}

	knownHashes := make(map[string]string, len(known))
	for path, hash := range known {
		knownHashes[hash] = path
	}
	seen := make(map[string]string)
	present := make(map[string]bool)

	err := d.corpus.Walk(ctx, root, func(file domain.CorpusFile) error {
		if !d.extensions[file.FileType] {
			return nil
		}
		report.Scanned++
		present[file.Path] = true

		hash, err := d.corpus.Hash(ctx, file.Path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			report.Failed++
			slog.Warn("scan_hash_failed", "path", file.Path, "error", err)
			return nil
		}

		previous, wasKnown := known[file.Path]
		if wasKnown && previous == hash {
			report.Unchanged++
			return nil
		}
		if owner, ok := knownHashes[hash]; ok && owner != file.Path {
			report.Duplicate++
			slog.Info("scan_duplicate_content", "path", file.Path, "duplicate_of", owner)
			return nil
		}
		if owner, ok := seen[hash]; ok {
			report.Duplicate++
			slog.Info("scan_duplicate_content", "path", file.Path, "duplicate_of", owner)
			return nil
		}

		dept, role, ok := d.policy.ResolveACL(file.RelPath)
		if !ok {
			report.Rejected++
			slog.Warn("scan_hierarchy_rejected", "path", file.Path, "rel_path", file.RelPath)
			return nil
		}
		seen[hash] = file.Path

		change := domain.ChangeNew
		if wasKnown {
			change = domain.ChangeModified
			report.Modified++
		} else {
			report.Added++
		}
		report.Jobs = append(report.Jobs, domain.IndexJob{
			Path:         file.Path,
			ContentHash:  hash,
			FileType:     file.FileType,
			Size:         file.Size,
			DepartmentID: dept,
			RoleID:       role,
			Change:       change,
			DetectedAt:   d.now().UTC(),
		})
		return nil
	})
	report.Duration = d.now().Sub(started)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			return report, err
		}
		return report, fmt.Errorf("walk corpus: %w", err)
	}
	report.Missing = missingPaths(known, present)
	return report, nil
}

// missingPaths returns the stored paths absent from a completed walk. A walk
// that found nothing while documents are stored is treated as an unmounted
// share and yields no removals.
func missingPaths(known map[string]string, present map[string]bool) []string {
	if len(present) == 0 && len(known) > 0 {
		slog.Warn("scan_empty_corpus", "known_documents", len(known))
		return nil
	}
	missing := make([]string, 0)
	for path := range known {
		if !present[path] {
			missing = append(missing, path)
		}
	}
	sort.Strings(missing)
	return missing
}

// Describe builds a manual index job for a single file under root.
func (d *ChangeDetector) Describe(ctx context.Context, root, path string) (domain.IndexJob, error) {
	var found *domain.CorpusFile
	err := d.corpus.Walk(ctx, root, func(file domain.CorpusFile) error {
		if file.Path == path || file.RelPath == path {
			f := file
			found = &f
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return domain.IndexJob{}, err
	}
	if found == nil {
		return domain.IndexJob{}, domain.WrapError(domain.ErrDocumentNotFound, "describe file", fmt.Errorf("%s is not under %s", path, root))
	}
	if !d.extensions[found.FileType] {
		return domain.IndexJob{}, domain.WrapError(domain.ErrUnsupportedType, "describe file", fmt.Errorf("extension %q", found.FileType))
	}

	hash, err := d.corpus.Hash(ctx, found.Path)
	if err != nil {
		return domain.IndexJob{}, fmt.Errorf("hash %s: %w", found.Path, err)
	}
	dept, role, ok := d.policy.ResolveACL(found.RelPath)
	if !ok {
		return domain.IndexJob{}, domain.WrapError(domain.ErrInvalidInput, "describe file", fmt.Errorf("%s has no department/role in its path", found.RelPath))
	}
	return domain.IndexJob{
		Path:         found.Path,
		ContentHash:  hash,
		FileType:     found.FileType,
		Size:         found.Size,
		DepartmentID: dept,
		RoleID:       role,
		Change:       domain.ChangeManual,
		DetectedAt:   d.now().UTC(),
	}, nil
}

var errStopWalk = errors.New("stop walk")
