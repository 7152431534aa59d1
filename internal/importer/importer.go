// Package importer drives one text file from disk into the task
// store: parse, upsert the book row, bulk-upsert its chapters as
// PENDING tasks (§4.2).
package importer

import (
	"context"
	"fmt"
	"log"

	"github.com/sxm1129/bookqueue/internal/apperrors"
	"github.com/sxm1129/bookqueue/internal/model"
	"github.com/sxm1129/bookqueue/internal/parser"
)

// ChapterStore is the subset of *store.Store the importer needs,
// narrowed to an interface so it can be tested without a database.
type ChapterStore interface {
	UpsertBook(ctx context.Context, title, author string, totalChapters int) (int64, error)
	BulkUpsertChapters(ctx context.Context, bookID int64, chapters []model.Chapter) error
}

// Importer turns book files into queue rows.
type Importer struct {
	store ChapterStore
}

// New builds an Importer against store.
func New(store ChapterStore) *Importer {
	return &Importer{store: store}
}

// Result is a dry-run-friendly summary of what an import produced or
// would produce.
type Result struct {
	Path         string
	Title        string
	Author       string
	ChapterCount int
	BookID       int64 // zero on a dry run
}

// ImportFile parses path and upserts its book + chapters. A ParseError
// or ImportError is returned to the caller (the bulk-import loop in
// cmd/importer is responsible for logging it and moving to the next
// file — a single bad file never aborts the batch).
func (imp *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	meta, err := parser.New(path).Parse()
	if err != nil {
		return nil, err
	}

	bookID, err := imp.store.UpsertBook(ctx, meta.Title, meta.Author, len(meta.Chapters))
	if err != nil {
		return nil, &apperrors.ImportError{Path: path, Err: err}
	}

	if err := imp.store.BulkUpsertChapters(ctx, bookID, meta.Chapters); err != nil {
		return nil, &apperrors.ImportError{Path: path, Err: err}
	}

	log.Printf("imported %s: book_id=%d title=%q chapters=%d", path, bookID, meta.Title, len(meta.Chapters))
	return &Result{
		Path:         path,
		Title:        meta.Title,
		Author:       meta.Author,
		ChapterCount: len(meta.Chapters),
		BookID:       bookID,
	}, nil
}

// DryRun parses path without touching the store, for the --dry-run
// supplement to the bulk importer (never partially writes, since it
// never writes at all).
func (imp *Importer) DryRun(path string) (*Result, error) {
	meta, err := parser.New(path).Parse()
	if err != nil {
		return nil, err
	}
	return &Result{
		Path:         path,
		Title:        meta.Title,
		Author:       meta.Author,
		ChapterCount: len(meta.Chapters),
	}, nil
}

// ImportTree discovers and imports every *.txt file under root, up to
// limit files (0 means unlimited), skipping and logging files that
// fail to parse or import rather than aborting the run — equivalent
// to ingest_all_books.py's per-file try/except loop.
func (imp *Importer) ImportTree(ctx context.Context, root string, limit int, dryRun bool) ([]*Result, error) {
	files, err := discoverTxtFiles(root)
	if err != nil {
		return nil, fmt.Errorf("discover txt files under %s: %w", root, err)
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	var results []*Result
	for _, f := range files {
		var (
			res *Result
			err error
		)
		if dryRun {
			res, err = imp.DryRun(f)
		} else {
			res, err = imp.ImportFile(ctx, f)
		}
		if err != nil {
			log.Printf("skip %s: %v", f, err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}
