package store

// Schema documents the table shape the rest of this package assumes
// already exists. Bootstrapping a database is out of scope (the
// original's init_db.py is a one-shot SQLAlchemy metadata.create_all
// call with no migration story); this constant is kept only so the
// required indexes are visible next to the queries that depend on
// them, and can be fed to a MySQL client by hand during setup.
const Schema = `
CREATE TABLE IF NOT EXISTS dim_books (
	book_id        BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	title          VARCHAR(512) NOT NULL,
	author         VARCHAR(255) NULL,
	total_chapters INT NOT NULL DEFAULT 0,
	created_at     DATETIME(6) NOT NULL DEFAULT NOW(6),
	PRIMARY KEY (book_id),
	UNIQUE KEY uq_title (title)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS fct_chapter_tasks (
	task_id        BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	book_id        BIGINT UNSIGNED NOT NULL,
	chapter_index  INT NOT NULL,
	chapter_title  VARCHAR(512) NOT NULL,
	content_text   MEDIUMTEXT NOT NULL,
	status         ENUM('PENDING','PROCESSING','COMPLETED','FAILED') NOT NULL DEFAULT 'PENDING',
	priority       INT NOT NULL DEFAULT 10,
	retry_count    INT NOT NULL DEFAULT 0,
	next_retry_at  DATETIME(6) NOT NULL DEFAULT NOW(6),
	locked_by      VARCHAR(255) NULL,
	locked_at      DATETIME(6) NULL,
	last_heartbeat DATETIME(6) NULL,
	audio_url      VARCHAR(1024) NULL,
	audio_duration INT NULL,
	error_log      VARCHAR(1000) NULL,
	PRIMARY KEY (task_id),
	UNIQUE KEY uq_chapter (book_id, chapter_index),
	KEY idx_fetch_task (status, priority, next_retry_at),
	KEY idx_next_retry_at (next_retry_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`
