package ingest

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docsage-ai/docsage/engine/domain"
)

// supportedExts are the file types loaded as plain text documents.
var supportedExts = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".text":     true,
}

// LoadDirectory reads every supported file under dir into a Document. The
// document ID is the slash-separated path relative to dir. A missing
// directory is fatal; unreadable or unsupported files are skipped with a
// warning and counted.
func LoadDirectory(dir string, log *slog.Logger) ([]domain.Document, int, error) {
	if log == nil {
		log = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, 0, fmt.Errorf("document directory %q: %w", dir, domain.ErrMissingDirectory)
	}

	var docs []domain.Document
	skipped := 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Warn("skipping unreadable entry", "path", path, "error", walkErr)
			skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !supportedExts[filepath.Ext(path)] {
			log.Warn("skipping unsupported file", "path", path)
			skipped++
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("skipping unreadable file", "path", path, "error", err)
			skipped++
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		rel = filepath.ToSlash(rel)

		docs = append(docs, domain.Document{
			ID:   rel,
			Text: string(data),
			Metadata: map[string]string{
				"file_name": filepath.Base(path),
				"file_path": rel,
			},
		})
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}
	return docs, skipped, nil
}
