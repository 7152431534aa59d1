package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestParseEmptyFileFails(t *testing.T) {
	path := writeTemp(t, "empty.txt", "")
	_, err := New(path).Parse()
	if err == nil {
		t.Fatalf("expected ParseError for empty file, got nil")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
}

func TestParseWhitespaceOnlyFileFails(t *testing.T) {
	path := writeTemp(t, "blank.txt", "   \n\t\n   \n")
	_, err := New(path).Parse()
	if err == nil {
		t.Fatalf("expected ParseError for whitespace-only file")
	}
}

func TestParsePatternHeadersYieldMultipleChapters(t *testing.T) {
	content := strings.Join([]string{
		"测试书",
		"作者: 张三",
		"",
		"第一章 开端",
		strings.Repeat("这是第一章的正文内容。", 50),
		"",
		"第二章 发展",
		strings.Repeat("这是第二章的正文内容。", 50),
		"",
		"第三章 结局",
		strings.Repeat("这是第三章的正文内容。", 50),
	}, "\n")
	path := writeTemp(t, "chapters.txt", content)

	meta, err := New(path).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Title != "测试书" {
		t.Fatalf("expected title 测试书, got %q", meta.Title)
	}
	if meta.Author == "" {
		t.Fatalf("expected author to be extracted")
	}
	if len(meta.Chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d: %+v", len(meta.Chapters), meta.Chapters)
	}
	for i, ch := range meta.Chapters {
		if ch.Index != i+1 {
			t.Errorf("chapter %d has index %d, want %d", i, ch.Index, i+1)
		}
		if ch.Content == "" {
			t.Errorf("chapter %d has empty content", i)
		}
	}
}

func TestParseSingleHeaderYieldsOneChapter(t *testing.T) {
	// A lone simple-ordinal header framed by blank lines, with no
	// second header anywhere: the pattern-match and simple-header
	// cascades each need >=2 hits to fire, so this falls through to
	// auto-chunking, which treats the whole body as one chunk when it
	// is short enough to stay under targetChunkSize.
	body := strings.Repeat("正文内容一段。", 20)
	content := "独立标题\n\n" + body + "\n"
	path := writeTemp(t, "single.txt", content)

	meta, err := New(path).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meta.Chapters) != 1 {
		t.Fatalf("expected 1 chapter, got %d", len(meta.Chapters))
	}
}

func TestParseParagraphBreakFallback(t *testing.T) {
	chunk := func(marker string) string {
		return strings.Repeat("无标题正文内容填充。", 120) + "\n" + marker + "\n"
	}
	content := chunk("——") + "\n\n\n" + chunk("***") + "\n\n\n" + strings.Repeat("最后一段内容填充文字。", 120)
	path := writeTemp(t, "breaks.txt", content)

	meta, err := New(path).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meta.Chapters) < 2 {
		t.Fatalf("expected >=2 chapters from paragraph-break fallback, got %d", len(meta.Chapters))
	}
	for _, ch := range meta.Chapters {
		if !strings.HasPrefix(ch.Title, "paragraph-split") {
			t.Errorf("expected paragraph-split label, got %q", ch.Title)
		}
	}
}

func TestParseAutoChunkOnUnbrokenProse(t *testing.T) {
	// A single unbroken line far longer than maxChunkSize, with no
	// headers and no paragraph breaks: only the auto-chunker can
	// produce output.
	content := strings.Repeat("a", 9000)
	path := writeTemp(t, "unbroken.txt", content)

	meta, err := New(path).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meta.Chapters) < 2 {
		t.Fatalf("expected >=2 auto-split chapters, got %d", len(meta.Chapters))
	}
	for _, ch := range meta.Chapters {
		if len(ch.Content) > maxChunkSize {
			t.Errorf("chapter %q content length %d exceeds maxChunkSize %d", ch.Title, len(ch.Content), maxChunkSize)
		}
		if !strings.HasPrefix(ch.Title, "auto-split") {
			t.Errorf("expected auto-split label, got %q", ch.Title)
		}
	}
}

func TestParseUsesFirstLineAsTitleWhenNoHeadersDetected(t *testing.T) {
	content := strings.Repeat("一些没有标题行的正文内容。", 40)
	path := writeTemp(t, "untitled_book.txt", content)

	meta, err := New(path).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Title == "" {
		t.Fatalf("expected a non-empty title")
	}
}

func TestCleanTextStripsZeroWidthAndCollapsesSpaces(t *testing.T) {
	dirty := "hello﻿  world​\t\tagain\r\n"
	got := cleanText(dirty)
	if strings.ContainsAny(got, "﻿​\r") {
		t.Fatalf("cleanText left stripped characters in: %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Fatalf("cleanText did not collapse run of spaces: %q", got)
	}
}

func TestSanitizeTitleTruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("字", maxTitleLength+50)
	got := sanitizeTitle("book.txt", long)
	if n := len([]rune(got)); n != maxTitleLength {
		t.Fatalf("expected truncated title of %d runes, got %d", maxTitleLength, n)
	}
}
