package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Adapter is the subset of a blob store the pipeline actually drives:
// upload a finished chapter's audio and release the client when the
// process exits. It carries no Get/Delete/List/Exists — nothing here
// ever reads back, deletes, or enumerates audio once it is uploaded.
type Adapter interface {
	// Put stores data at the given path
	Put(ctx context.Context, path string, data io.Reader) error

	// Close cleans up any resources
	Close() error
}

// Presigner issues a time-bound GET URL for an object already stored
// through Adapter.Put. Not every Adapter can do this meaningfully (a
// local filesystem has no signature scheme) but the blob store the
// pipeline targets (S3-compatible) always can.
type Presigner interface {
	PresignGet(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// AudioKey computes the deterministic object key for one chapter's
// audio, §4.4 step 4: audio/<first 2 hex digits of md5(book_id)>/<book_id>/<chapter_index>.mp3.
func AudioKey(bookID int64, chapterIndex int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d", bookID)))
	prefix := hex.EncodeToString(sum[:])[:2]
	return fmt.Sprintf("audio/%s/%d/%d.mp3", prefix, bookID, chapterIndex)
}
