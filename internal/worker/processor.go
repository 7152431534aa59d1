package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/sxm1129/bookqueue/internal/apperrors"
	"github.com/sxm1129/bookqueue/internal/model"
	"github.com/sxm1129/bookqueue/internal/storage"
)

// Synthesizer is the opaque TTS contract the processor drives (§4.4
// steps 1-3), narrowed to an interface so it can be faked in tests.
type Synthesizer interface {
	Synthesize(ctx context.Context, chapterText string) (audio []byte, duration *int, err error)
}

// BlobStore is the subset of storage.Adapter the processor needs to
// upload a finished chapter's audio.
type BlobStore interface {
	Put(ctx context.Context, path string, data io.Reader) error
	storage.Presigner
}

// ProcessStore is the store dependency the Processor needs beyond
// heartbeating.
type ProcessStore interface {
	HeartbeatStore
	MarkCompleted(ctx context.Context, taskID int64, audioURL string, audioDuration *int) error
	MarkFailed(ctx context.Context, taskID int64, retryCount int, maxRetries int, cause string) error
}

// Processor runs the per-task state machine: synthesize, upload,
// presign, complete — or convert any failure into a retry/backoff
// transition (§4.4).
type Processor struct {
	store             ProcessStore
	tts               Synthesizer
	blob              BlobStore
	workerID          string
	maxRetries        int
	heartbeatInterval time.Duration
	presignExpiry     time.Duration

	semaphore chan struct{}
}

// NewProcessor builds a Processor gated by a semaphore of size
// gpuLimit (default 4, §4.4 "Concurrency limit").
func NewProcessor(store ProcessStore, tts Synthesizer, blob BlobStore, workerID string, maxRetries, gpuLimit int, heartbeatInterval, presignExpiry time.Duration) *Processor {
	return &Processor{
		store:             store,
		tts:               tts,
		blob:              blob,
		workerID:          workerID,
		maxRetries:        maxRetries,
		heartbeatInterval: heartbeatInterval,
		presignExpiry:     presignExpiry,
		semaphore:         make(chan struct{}, gpuLimit),
	}
}

// ProcessTask runs task to completion or failure. It blocks until a
// semaphore slot is available or ctx is cancelled.
func (p *Processor) ProcessTask(ctx context.Context, task *model.ChapterTask) error {
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.semaphore }()

	hb := NewHeartbeat(p.store, task.TaskID, p.workerID, p.heartbeatInterval)
	hb.Start(ctx)
	defer hb.Stop()

	audioURL, duration, err := p.synthesizeAndUpload(ctx, task)
	if err != nil {
		log.Printf("task %d failed: %v", task.TaskID, err)
		if markErr := p.store.MarkFailed(ctx, task.TaskID, task.RetryCount, p.maxRetries, err.Error()); markErr != nil {
			return fmt.Errorf("mark task %d failed: %w", task.TaskID, markErr)
		}
		return nil
	}

	if err := p.store.MarkCompleted(ctx, task.TaskID, audioURL, duration); err != nil {
		return fmt.Errorf("mark task %d completed: %w", task.TaskID, err)
	}
	log.Printf("task %d completed: %s", task.TaskID, audioURL)
	return nil
}

func (p *Processor) synthesizeAndUpload(ctx context.Context, task *model.ChapterTask) (string, *int, error) {
	audio, duration, err := p.tts.Synthesize(ctx, task.ContentText)
	if err != nil {
		return "", nil, &apperrors.SynthesisError{Err: err}
	}

	key := storage.AudioKey(task.BookID, task.ChapterIndex)
	if err := p.blob.Put(ctx, key, bytes.NewReader(audio)); err != nil {
		return "", nil, &apperrors.UploadError{Err: err}
	}

	url, err := p.blob.PresignGet(ctx, key, p.presignExpiry)
	if err != nil {
		return "", nil, &apperrors.PresignError{Err: err}
	}
	return url, duration, nil
}
