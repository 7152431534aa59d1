// Package model holds the persistent and transient entities shared by the
// importer, fetcher, processor and watchdog.
package model

import "time"

// TaskStatus is the lifecycle state of a ChapterTask.
type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusProcessing TaskStatus = "PROCESSING"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusFailed     TaskStatus = "FAILED"
)

// MaxChapterTitleLength is the column width for ChapterTask.ChapterTitle.
const MaxChapterTitleLength = 512

// MaxErrorLogLength truncates error_log on write.
const MaxErrorLogLength = 1000

// DefaultPriority is assigned to newly-imported chapters. Lower numeric
// priority was evidently meant to read as "more urgent" (re-import takes
// min(old, new)) but the fetch path orders priority DESC — see O1 in
// DESIGN.md. Both are kept as observed.
const DefaultPriority = 10

// Book is a row in dim_books.
type Book struct {
	BookID        int64
	Title         string
	Author        string
	TotalChapters int
	CreatedAt     time.Time
}

// ChapterTask is a row in fct_chapter_tasks: the queue element and the
// unit of work.
type ChapterTask struct {
	TaskID        int64
	BookID        int64
	ChapterIndex  int
	ChapterTitle  string
	ContentText   string
	Status        TaskStatus
	Priority      int
	RetryCount    int
	NextRetryAt   time.Time
	LockedBy      *string
	LockedAt      *time.Time
	LastHeartbeat *time.Time
	AudioURL      *string
	AudioDuration *int
	ErrorLog      *string
}

// Chapter is a transient parser entity: one 1-based-indexed section of a
// parsed book, stable across a single parse.
type Chapter struct {
	Index   int
	Title   string
	Content string
}

// BookMetadata is what the parser returns for a single source file.
type BookMetadata struct {
	Title    string
	Author   string
	Chapters []Chapter
}
