// Package apperrors defines the tagged error kinds the pipeline's
// boundaries report. The original exception-driven failure mapping (any
// Python exception caught by a broad except clause) becomes an explicit
// sum of error kinds here, per the "Exception-driven failure mapping"
// redesign note: each boundary — parse, import, fetch, synthesize,
// upload, presign — wraps its underlying cause in a concrete type so
// callers can switch on kind instead of string-matching messages.
package apperrors

import "fmt"

// ImportError wraps a store failure during book/chapter upsert. The
// file that triggered it is skipped and logged; it never poisons the
// queue for other files.
type ImportError struct {
	Path string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Path, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// FetchError wraps a store failure during lease acquisition. The
// worker logs it, idles, and retries the fetch loop.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch task: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SynthesisError covers any failure in the TTS POST, MP3 poll
// exhaustion, a missing mp3_url, or a non-2xx poll response. It is
// converted to a retry/backoff task-state transition, never propagated
// to the caller of ProcessTask.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// UploadError wraps a blob-store PUT failure.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload audio: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PresignError wraps a blob-store presigned-URL generation failure.
type PresignError struct {
	Err error
}

func (e *PresignError) Error() string {
	return fmt.Sprintf("presign audio url: %v", e.Err)
}

func (e *PresignError) Unwrap() error { return e.Err }
