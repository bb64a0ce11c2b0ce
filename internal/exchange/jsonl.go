// Package exchange moves articles in and out of the local store as JSONL,
// one article per line.
package exchange

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/quillpress/quill/internal/article"
	"github.com/quillpress/quill/internal/store"
)

// Lister reads every article. *store.Store satisfies it.
type Lister interface {
	List(ctx context.Context) ([]*article.Article, error)
}

// Importer writes articles. *store.Store satisfies it.
type Importer interface {
	Get(ctx context.Context, localID string) (*article.Article, error)
	Put(ctx context.Context, a *article.Article) (string, error)
	InsertConfirmed(ctx context.Context, r article.Remote) (localID string, inserted bool, err error)
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	DryRun bool // Validate without writing
	Backup bool // Copy the input next to itself first
}

// ImportResult contains statistics about an import
type ImportResult struct {
	Pending       int // pending articles written
	Confirmed     int // confirmed articles written
	Skipped       int // already present locally
	BackupCreated string
	Errors        []string
}

// Export writes every article to w, oldest first, and returns the count.
func Export(ctx context.Context, src Lister, w io.Writer) (int, error) {
	articles, err := src.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list articles: %w", err)
	}

	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].CreatedAt.Equal(articles[j].CreatedAt) {
			return articles[i].CreatedAt.Before(articles[j].CreatedAt)
		}
		return articles[i].LocalID < articles[j].LocalID
	})

	bw := bufio.NewWriter(w)
	encoder := json.NewEncoder(bw)
	encoder.SetEscapeHTML(false)
	for _, a := range articles {
		if err := encoder.Encode(a); err != nil {
			return 0, fmt.Errorf("failed to encode article %s: %w", a.LocalID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}

	return len(articles), nil
}

// ExportFile writes the export to path atomically via a temp file.
func ExportFile(ctx context.Context, src Lister, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := Export(ctx, src, file)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return n, nil
}

// ReadJSONL decodes articles from r. Blank lines are skipped; the first
// malformed line fails the read with its line number.
func ReadJSONL(r io.Reader) ([]*article.Article, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var articles []*article.Article
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var a article.Article
		if err := json.Unmarshal(line, &a); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		articles = append(articles, &a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL: %w", err)
	}

	return articles, nil
}

// Import reads a JSONL export into dst.
//
// Confirmed articles are matched by server id and pending ones by local id;
// either kind already present is skipped. Invalid articles are reported in
// the result and do not stop the import. A storage fault does.
func Import(ctx context.Context, dst Importer, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	articles, err := ReadJSONL(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i, a := range articles {
		if err := a.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("article %d (%s): %v", i+1, a.LocalID, err))
			continue
		}

		if a.ServerID != nil {
			if opts.DryRun {
				result.Confirmed++
				continue
			}
			_, inserted, err := dst.InsertConfirmed(ctx, article.Remote{
				ID:        *a.ServerID,
				Title:     a.Title,
				Content:   a.Body,
				CreatedAt: a.CreatedAt,
			})
			if err != nil {
				return result, fmt.Errorf("failed to import server record %d: %w", *a.ServerID, err)
			}
			if inserted {
				result.Confirmed++
			} else {
				result.Skipped++
			}
			continue
		}

		if a.LocalID != "" {
			_, err := dst.Get(ctx, a.LocalID)
			if err == nil {
				result.Skipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return result, fmt.Errorf("failed to look up article %s: %w", a.LocalID, err)
			}
		}

		if !opts.DryRun {
			if _, err := dst.Put(ctx, a); err != nil {
				return result, fmt.Errorf("failed to import article %s: %w", a.LocalID, err)
			}
		}
		result.Pending++
	}

	return result, nil
}

// ImportFile imports the JSONL file at path, optionally backing it up first.
func ImportFile(ctx context.Context, dst Importer, path string, opts ImportOptions) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	input, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var backup string
	if opts.Backup && !opts.DryRun {
		backup = path + ".backup." + time.Now().Format("20060102-150405")
		if err := os.WriteFile(backup, input, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
	}

	result, err := Import(ctx, dst, bytes.NewReader(input), opts)
	if result != nil {
		result.BackupCreated = backup
	}
	return result, err
}
