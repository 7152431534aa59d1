package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sxm1129/bookqueue/internal/model"
)

// chapterBatchSize matches bulk_insert_chapters's batching: the
// original commits every 200 rows so one oversized book can't hold a
// single transaction open indefinitely.
const chapterBatchSize = 200

// BulkUpsertChapters writes chapters for bookID in batches, resetting
// scheduling state on every row whether it is new or reimported. A
// batch that fails is the unit of retry; prior batches already
// committed are left in place (the importer skips the file forward,
// it does not roll the whole file back).
func (s *Store) BulkUpsertChapters(ctx context.Context, bookID int64, chapters []model.Chapter) error {
	for start := 0; start < len(chapters); start += chapterBatchSize {
		end := start + chapterBatchSize
		if end > len(chapters) {
			end = len(chapters)
		}
		if err := s.upsertChapterBatch(ctx, bookID, chapters[start:end]); err != nil {
			return fmt.Errorf("chapter batch [%d:%d) for book %d: %w", start, end, bookID, err)
		}
	}
	return nil
}

func (s *Store) upsertChapterBatch(ctx context.Context, bookID int64, batch []model.Chapter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO fct_chapter_tasks
			(book_id, chapter_index, chapter_title, content_text, status, priority, next_retry_at)
		VALUES
			(?, ?, ?, ?, 'PENDING', ?, NOW(6))
		ON DUPLICATE KEY UPDATE
			chapter_title  = VALUES(chapter_title),
			content_text   = VALUES(content_text),
			status         = 'PENDING',
			priority       = LEAST(priority, VALUES(priority)),
			retry_count    = 0,
			next_retry_at  = NOW(6),
			locked_by      = NULL,
			locked_at      = NULL,
			last_heartbeat = NULL,
			audio_url      = NULL,
			audio_duration = NULL,
			error_log      = NULL`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range batch {
		if _, err := stmt.ExecContext(ctx, bookID, ch.Index, ch.Title, ch.Content, model.DefaultPriority); err != nil {
			return fmt.Errorf("upsert chapter %d: %w", ch.Index, err)
		}
	}
	return tx.Commit()
}

// FetchOne claims the single highest-priority fetchable task for
// workerID, or returns (nil, nil) if none is currently fetchable. The
// ORDER BY priority DESC mirrors the source's ordering exactly — see
// O1 in DESIGN.md; it is not "corrected" to ascending here.
func (s *Store) FetchOne(ctx context.Context, workerID string) (*model.ChapterTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fetch: %w", err)
	}
	defer tx.Rollback()

	const selectQ = `
		SELECT task_id FROM fct_chapter_tasks
		WHERE status = 'PENDING' AND next_retry_at <= NOW(6)
		ORDER BY priority DESC, next_retry_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var taskID int64
	err = tx.QueryRowContext(ctx, selectQ).Scan(&taskID)
	if err == sql.ErrNoRows {
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, fmt.Errorf("select fetchable task: %w", err)
	}

	const claimQ = `
		UPDATE fct_chapter_tasks
		SET status = 'PROCESSING', locked_by = ?, locked_at = NOW(6), last_heartbeat = NOW(6)
		WHERE task_id = ?`
	if _, err := tx.ExecContext(ctx, claimQ, workerID, taskID); err != nil {
		return nil, fmt.Errorf("claim task %d: %w", taskID, err)
	}

	task, err := scanTask(tx.QueryRowContext(ctx, taskSelectColumns+` WHERE task_id = ?`, taskID))
	if err != nil {
		return nil, fmt.Errorf("reload claimed task %d: %w", taskID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return task, nil
}

const taskSelectColumns = `
	SELECT task_id, book_id, chapter_index, chapter_title, content_text,
	       status, priority, retry_count, next_retry_at,
	       locked_by, locked_at, last_heartbeat,
	       audio_url, audio_duration, error_log
	FROM fct_chapter_tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.ChapterTask, error) {
	var t model.ChapterTask
	var lockedBy, audioURL, errorLog sql.NullString
	var lockedAt, lastHeartbeat sql.NullTime
	var audioDuration sql.NullInt64

	err := row.Scan(
		&t.TaskID, &t.BookID, &t.ChapterIndex, &t.ChapterTitle, &t.ContentText,
		&t.Status, &t.Priority, &t.RetryCount, &t.NextRetryAt,
		&lockedBy, &lockedAt, &lastHeartbeat,
		&audioURL, &audioDuration, &errorLog,
	)
	if err != nil {
		return nil, err
	}
	if lockedBy.Valid {
		t.LockedBy = &lockedBy.String
	}
	if lockedAt.Valid {
		t.LockedAt = &lockedAt.Time
	}
	if lastHeartbeat.Valid {
		t.LastHeartbeat = &lastHeartbeat.Time
	}
	if audioURL.Valid {
		t.AudioURL = &audioURL.String
	}
	if audioDuration.Valid {
		d := int(audioDuration.Int64)
		t.AudioDuration = &d
	}
	if errorLog.Valid {
		t.ErrorLog = &errorLog.String
	}
	return &t, nil
}

// Heartbeat refreshes last_heartbeat for taskID, guarded on both
// task_id and locked_by so a lease already resurrected by the
// watchdog is silently left alone. Returns false when no row matched
// — the caller does not propagate this as an error (§4.5): the
// Processor keeps running to its natural exit, it just stops having
// any effect on the row it no longer owns.
func (s *Store) Heartbeat(ctx context.Context, taskID int64, workerID string) (bool, error) {
	const q = `
		UPDATE fct_chapter_tasks
		SET last_heartbeat = NOW(6)
		WHERE task_id = ? AND locked_by = ?`
	res, err := s.db.ExecContext(ctx, q, taskID, workerID)
	if err != nil {
		return false, fmt.Errorf("heartbeat task %d: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat task %d rows affected: %w", taskID, err)
	}
	return n > 0, nil
}

// MarkCompleted writes the terminal success state. The predicate is
// task_id alone — O3's "zombie completion" behavior, replicated as
// observed rather than additionally guarded on locked_by.
func (s *Store) MarkCompleted(ctx context.Context, taskID int64, audioURL string, audioDuration *int) error {
	const q = `
		UPDATE fct_chapter_tasks
		SET status = 'COMPLETED',
		    audio_url = ?,
		    audio_duration = ?,
		    last_heartbeat = NOW(6),
		    locked_by = NULL,
		    locked_at = NULL,
		    error_log = NULL
		WHERE task_id = ?`
	if _, err := s.db.ExecContext(ctx, q, audioURL, audioDuration, taskID); err != nil {
		return fmt.Errorf("mark task %d completed: %w", taskID, err)
	}
	return nil
}

// MarkFailed converts a processing failure into the next scheduling
// state: PENDING with exponential minutes-backoff, or terminal FAILED
// once retries are exhausted (§4.4's failure handler, O4's
// minutes-not-seconds unit preserved).
func (s *Store) MarkFailed(ctx context.Context, taskID int64, retryCount int, maxRetries int, cause string) error {
	newRetries := retryCount + 1
	errLog := truncateErrorLog(cause)

	var q string
	var args []any
	if newRetries >= maxRetries {
		q = `
			UPDATE fct_chapter_tasks
			SET status = 'FAILED',
			    retry_count = ?,
			    next_retry_at = NOW(6),
			    locked_by = NULL, locked_at = NULL, last_heartbeat = NULL,
			    audio_url = NULL, audio_duration = NULL,
			    error_log = ?
			WHERE task_id = ?`
		args = []any{newRetries, errLog, taskID}
	} else {
		delayMinutes := backoffMinutes(newRetries)
		q = `
			UPDATE fct_chapter_tasks
			SET status = 'PENDING',
			    retry_count = ?,
			    next_retry_at = DATE_ADD(NOW(6), INTERVAL ? MINUTE),
			    locked_by = NULL, locked_at = NULL, last_heartbeat = NULL,
			    audio_url = NULL, audio_duration = NULL,
			    error_log = ?
			WHERE task_id = ?`
		args = []any{newRetries, delayMinutes, errLog, taskID}
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("mark task %d failed: %w", taskID, err)
	}
	return nil
}

// backoffMinutes is min(2^retries, 60), §4.4 / O4.
func backoffMinutes(retries int) int {
	if retries < 0 {
		return 1
	}
	minutes := 1 << retries
	if retries >= 6 || minutes > 60 {
		return 60
	}
	return minutes
}

func truncateErrorLog(s string) string {
	if utf8.RuneCountInString(s) <= model.MaxErrorLogLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:model.MaxErrorLogLength])
}

// ResurrectStale implements the watchdog sweep (§4.6): any PROCESSING
// row whose last_heartbeat is older than thresholdMinutes is bounced
// back to PENDING with retry_count incremented. Rows with a NULL
// last_heartbeat are left untouched — O2, replicated as observed.
func (s *Store) ResurrectStale(ctx context.Context, thresholdMinutes int) (int64, error) {
	now := time.Now().UTC()
	suffix := fmt.Sprintf("\nReset by Watchdog at %s", now.Format(time.RFC3339))

	const q = `
		UPDATE fct_chapter_tasks
		SET status = 'PENDING',
		    retry_count = retry_count + 1,
		    next_retry_at = NOW(6),
		    locked_by = NULL, locked_at = NULL, last_heartbeat = NULL,
		    error_log = CONCAT(COALESCE(error_log, ''), ?)
		WHERE status = 'PROCESSING'
		  AND last_heartbeat IS NOT NULL
		  AND last_heartbeat < DATE_SUB(NOW(6), INTERVAL ? MINUTE)`

	res, err := s.db.ExecContext(ctx, q, suffix, thresholdMinutes)
	if err != nil {
		return 0, fmt.Errorf("resurrect stale tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resurrect stale tasks rows affected: %w", err)
	}
	return n, nil
}
