package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

const hashBlockSize = 4096

// Corpus reads documents from a mounted directory tree.
type Corpus struct{}

func New() *Corpus {
	return &Corpus{}
}

// Walk calls fn for every regular file below root. A missing or unreadable
// root is a configuration error; unreadable subdirectories are logged and skipped.
func (c *Corpus) Walk(ctx context.Context, root string, fn func(domain.CorpusFile) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidConfig, "walk corpus", fmt.Errorf("corpus root %q: %w", root, err))
	}
	if !info.IsDir() {
		return domain.WrapError(domain.ErrInvalidConfig, "walk corpus", fmt.Errorf("corpus root %q is not a directory", root))
	}
	if _, err := os.ReadDir(root); err != nil {
		return domain.WrapError(domain.ErrInvalidConfig, "walk corpus", fmt.Errorf("read corpus root %q: %w", root, err))
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			slog.Warn("corpus_walk_error", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		var size int64
		if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		return fn(domain.CorpusFile{
			Path:     path,
			RelPath:  filepath.ToSlash(rel),
			FileType: strings.ToLower(filepath.Ext(path)),
			Size:     size,
		})
	})
}

// Hash streams the file through SHA-256 and returns the hex digest.
func (c *Corpus) Hash(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBlockSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
