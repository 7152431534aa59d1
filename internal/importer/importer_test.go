package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sxm1129/bookqueue/internal/model"
)

type fakeStore struct {
	books        map[string]int64
	nextBookID   int64
	upsertedBook []struct {
		title, author string
		total         int
	}
	chapters map[int64][]model.Chapter
	failBulk bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{books: map[string]int64{}, chapters: map[int64][]model.Chapter{}}
}

func (f *fakeStore) UpsertBook(ctx context.Context, title, author string, totalChapters int) (int64, error) {
	if id, ok := f.books[title]; ok {
		return id, nil
	}
	f.nextBookID++
	f.books[title] = f.nextBookID
	return f.nextBookID, nil
}

func (f *fakeStore) BulkUpsertChapters(ctx context.Context, bookID int64, chapters []model.Chapter) error {
	if f.failBulk {
		return assert.AnError
	}
	f.chapters[bookID] = chapters
	return nil
}

func writeBook(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleBook = "My Book\n作者: Someone\n\n第一章 开端\n这是第一章的内容，足够长一些用来通过清理。\n\n第二章 发展\n这是第二章的内容，也足够长。\n"

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	path := writeBook(t, dir, "book.txt", sampleBook)

	store := newFakeStore()
	imp := New(store)

	res, err := imp.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "My Book", res.Title)
	assert.GreaterOrEqual(t, res.ChapterCount, 2)
	assert.Len(t, store.chapters[res.BookID], res.ChapterCount)
}

func TestImportFileParseErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	path := writeBook(t, dir, "empty.txt", "")

	imp := New(newFakeStore())
	_, err := imp.ImportFile(context.Background(), path)
	assert.Error(t, err)
}

func TestDryRunNeverWrites(t *testing.T) {
	dir := t.TempDir()
	path := writeBook(t, dir, "book.txt", sampleBook)

	store := newFakeStore()
	imp := New(store)

	res, err := imp.DryRun(path)
	require.NoError(t, err)
	assert.Zero(t, res.BookID)
	assert.Empty(t, store.chapters)
}

func TestImportTreeSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeBook(t, dir, "good.txt", sampleBook)
	writeBook(t, dir, "bad.txt", "")

	store := newFakeStore()
	imp := New(store)

	results, err := imp.ImportTree(context.Background(), dir, 0, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "My Book", results[0].Title)
}

func TestImportTreeRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	writeBook(t, dir, "a.txt", sampleBook)
	writeBook(t, dir, "b.txt", sampleBook)

	store := newFakeStore()
	imp := New(store)

	results, err := imp.ImportTree(context.Background(), dir, 1, false)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
