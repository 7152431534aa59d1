// Package parser turns a raw TXT book file into an ordered list of
// chapters. It runs a cascade of segmentation strategies — pattern
// header matching, simple bare-ordinal headers, decorative paragraph
// breaks, and finally a greedy auto-chunker that never fails to produce
// at least one chapter.
package parser

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sxm1129/bookqueue/internal/model"
)

// Character classes kept literal per the source regex set — these are
// tuned to a CJK+Latin mixed corpus and have not been characterized on
// purely alphabetic input (see O5 in DESIGN.md).
const (
	chineseNumerals = "〇零一二三四五六七八九十百千万"
	romanNumerals   = "IVXLCDM"
	chapterKeywords = "章节回卷篇部节"
)

var (
	// Zero-width characters stripped from cleaned chapter content:
	// U+FEFF, U+200B, U+200C, U+200D, U+202A-U+202E.
	zeroWidthChars = []string{
		"﻿", "​", "‌", "‍",
		"‪", "‫", "‬", "‭", "‮",
	}
	headerKeywords = []string{
		"序", "前言", "自序", "引言", "后记", "跋", "序言", "代序", "代后记",
	}
	paragraphBreakMarkers = []string{
		"——", "***", "＊＊＊", "~~~", "=== ", "---",
	}
	trailingDecoration = "：:、．.()（）-—*~　"
)

const (
	maxTitleLength  = model.MaxChapterTitleLength
	targetChunkSize = 2200
	minChunkSize    = 800
	maxChunkSize    = 3600
)

var (
	multiBlankPattern = regexp.MustCompile(`\n\s*\n\s*\n+`)

	chapterPatterns = []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(
			`^\s*(第[\s]*[%s0-9]+[\s]*[%s](?:\s+[%s0-9]+)?)\s*[：:,，、\s．.\-—]*([^\n]*)$`,
			chineseNumerals, chapterKeywords, chineseNumerals)),
		regexp.MustCompile(fmt.Sprintf(
			`^\s*([%s][\s]*[%s0-9]+)\s*[：:,，、\s．.\-—]*([^\n]*)$`,
			chapterKeywords, chineseNumerals)),
		regexp.MustCompile(
			`^\s*((?:CHAPTER|Chapter|chapter)\s+[0-9IVXLCDM]+)\s*[：:,，、\s．.\-—]*([^\n]*)$`),
		regexp.MustCompile(fmt.Sprintf(
			`^\s*([（(][\s]*[%s0-9%s]+[\s]*[)）])\s*[：:,，、\s．.\-—]*([^\n]*)$`,
			chineseNumerals, romanNumerals)),
	}

	simpleHeaderPattern = regexp.MustCompile(fmt.Sprintf(
		`(?i)^(?:第)?[%s0-9%s]+(?:[%s])?$`, chineseNumerals, romanNumerals, chapterKeywords))

	romanNumeralPattern = regexp.MustCompile(fmt.Sprintf(`(?i)^[%s]+$`, romanNumerals))

	collapseSpaceTab = regexp.MustCompile(`[ \t]+`)
)

// Error is raised when a TXT file cannot be parsed into chapters.
type Error struct {
	Path string
}

func (e *Error) Error() string {
	return fmt.Sprintf("no chapters detected in %s", e.Path)
}

// section is a transient, half-open byte range inside the source text,
// used only during parsing.
type section struct {
	title string
	start int
	end   int
}

// BookParser parses a single TXT file into a model.BookMetadata.
type BookParser struct {
	path string
}

// New creates a parser bound to the given file path.
func New(path string) *BookParser {
	return &BookParser{path: path}
}

// Parse reads the file and runs the segmentation cascade. It fails only
// when every strategy (including the always-succeeding auto-chunker)
// produces zero non-empty chapters after cleaning — in practice this is
// only reachable for an empty or all-whitespace file.
func (p *BookParser) Parse() (model.BookMetadata, error) {
	raw, err := p.readFile()
	if err != nil {
		return model.BookMetadata{}, err
	}

	title, author := p.extractHeader(raw)
	sections := p.locateSections(raw)

	chapters := make([]model.Chapter, 0, len(sections))
	for _, sec := range sections {
		content := cleanText(raw[sec.start:sec.end])
		if content == "" {
			continue
		}
		chapters = append(chapters, model.Chapter{
			Index:   len(chapters) + 1,
			Title:   sanitizeTitle(p.path, sec.title),
			Content: content,
		})
	}

	if len(chapters) == 0 {
		return model.BookMetadata{}, &Error{Path: p.path}
	}

	if title == "" {
		title = stem(p.path)
	}

	return model.BookMetadata{Title: title, Author: author, Chapters: chapters}, nil
}

func (p *BookParser) readFile() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("read book file: %w", err)
	}
	// Best-effort UTF-8 decode: invalid byte sequences are discarded,
	// never raised as an error.
	return strings.ToValidUTF8(string(data), ""), nil
}

func (p *BookParser) extractHeader(text string) (title, author string) {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(raw); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) == 0 {
		return "", ""
	}
	title = lines[0]
	if len(lines) > 1 {
		authorLine := lines[1]
		if strings.Contains(authorLine, "著") || strings.Contains(authorLine, "作者") {
			author = authorLine
		}
	}
	return title, author
}

// locateSections runs the strategy cascade: pattern header matches,
// then simple bare-ordinal headers, then decorative paragraph breaks,
// then the auto-chunker, which always yields at least one section for
// non-empty input.
func (p *BookParser) locateSections(text string) []section {
	if secs := p.sectionsFromMatches(text); len(secs) > 0 {
		return secs
	}
	if secs := p.sectionsFromSimpleHeaders(text); len(secs) > 0 {
		log.Printf("parser: using simple header fallback for %s", p.path)
		return secs
	}
	if secs := sectionsFromParagraphBreaks(text); len(secs) > 0 {
		log.Printf("parser: using paragraph break fallback for %s", p.path)
		return secs
	}
	secs := sectionsFromAutoChunks(text)
	if len(secs) > 0 {
		log.Printf("parser: using auto chunk fallback for %s", p.path)
	}
	return secs
}

func (p *BookParser) sectionsFromMatches(text string) []section {
	var secs []section
	for _, lo := range iterLineOffsets(text) {
		title := normalizeHeaderLine(lo.line)
		if title == "" {
			continue
		}
		secs = append(secs, section{title: title, start: lo.start + len(lo.line)})
	}
	if len(secs) < 2 {
		return nil
	}
	return finalizeSections(secs, len(text))
}

func (p *BookParser) sectionsFromSimpleHeaders(text string) []section {
	offsets := iterLineOffsets(text)
	var headers []section
	for idx, lo := range offsets {
		stripped := strings.TrimSpace(lo.line)
		if stripped == "" {
			continue
		}
		candidate := strings.TrimRight(stripped, trailingDecoration)
		if utf8.RuneCountInString(candidate) > 12 {
			continue
		}
		if simpleHeaderPattern.MatchString(candidate) {
			prevBlank := idx > 0 && strings.TrimSpace(offsets[idx-1].line) == ""
			nextBlank := idx+1 < len(offsets) && strings.TrimSpace(offsets[idx+1].line) == ""
			if !prevBlank && !nextBlank {
				continue
			}
			headers = append(headers, section{title: stripped, start: lo.start + len(lo.line)})
		} else if containsAny(stripped, headerKeywords) {
			headers = append(headers, section{title: stripped, start: lo.start + len(lo.line)})
		}
	}
	if len(headers) < 2 {
		return nil
	}
	return finalizeSections(headers, len(text))
}

func sectionsFromParagraphBreaks(text string) []section {
	breakPositions := map[int]int{}
	for _, m := range multiBlankPattern.FindAllStringIndex(text, -1) {
		breakPositions[m[0]] = m[1]
	}
	for _, lo := range iterLineOffsets(text) {
		stripped := strings.TrimSpace(lo.line)
		if stripped == "" {
			continue
		}
		if containsAny(stripped, paragraphBreakMarkers) {
			breakPositions[lo.start] = lo.start + len(lo.line)
		}
	}
	if len(breakPositions) == 0 {
		return nil
	}

	starts := make([]int, 0, len(breakPositions))
	for k := range breakPositions {
		starts = append(starts, k)
	}
	sort.Ints(starts)

	var secs []section
	last := 0
	idx := 1
	for _, splitStart := range starts {
		if splitStart-last < minChunkSize {
			continue
		}
		secs = append(secs, section{
			title: fmt.Sprintf("paragraph-split %03d", idx),
			start: last,
			end:   splitStart,
		})
		idx++
		last = breakPositions[splitStart]
	}
	if len(text)-last >= minChunkSize {
		secs = append(secs, section{
			title: fmt.Sprintf("paragraph-split %03d", idx),
			start: last,
			end:   len(text),
		})
	}
	if len(secs) < 2 {
		return nil
	}
	return secs
}

func sectionsFromAutoChunks(text string) []section {
	var secs []section
	length := len(text)
	start := 0
	chunkIndex := 1
	for start < length {
		tentativeEnd := min(length, start+maxChunkSize)
		splitPoint := findSplitPoint(text, start, tentativeEnd)
		secs = append(secs, section{
			title: fmt.Sprintf("auto-split %03d", chunkIndex),
			start: start,
			end:   splitPoint,
		})
		chunkIndex++
		start = splitPoint
		for start < length {
			r, size := utf8.DecodeRuneInString(text[start:])
			if !unicode.IsSpace(r) {
				break
			}
			start += size
		}
	}
	return secs
}

func findSplitPoint(text string, start, maxEnd int) int {
	length := len(text)
	searchEnd := min(length, maxEnd)
	preferred := min(length, start+targetChunkSize)
	minPos := min(length, start+minChunkSize)
	if minPos >= searchEnd {
		return searchEnd
	}

	split := lastIndexInRange(text, "\n\n", preferred, searchEnd)
	if split == -1 || split <= start {
		for _, delim := range []string{"。", "！", "？", "；", ".", "!", "?"} {
			idx := lastIndexInRange(text, delim, preferred, searchEnd)
			if idx != -1 {
				split = idx + len(delim)
				break
			}
			split = -1
		}
	}
	if split == -1 || split <= start {
		split = searchEnd
	}
	return split
}

func lastIndexInRange(text, substr string, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	if hi > len(text) {
		hi = len(text)
	}
	if lo >= hi {
		return -1
	}
	idx := strings.LastIndex(text[lo:hi], substr)
	if idx == -1 {
		return -1
	}
	return lo + idx
}

func finalizeSections(secs []section, textLength int) []section {
	if len(secs) == 0 {
		return nil
	}
	for i := range secs {
		if i+1 < len(secs) {
			secs[i].end = secs[i+1].start
		} else {
			secs[i].end = textLength
		}
	}
	return secs
}

// normalizeHeaderLine returns a sanitized title iff line reads as a
// chapter-like header, or "" if it does not.
func normalizeHeaderLine(line string) string {
	stripped := strings.TrimSpace(line)
	if stripped == "" || utf8.RuneCountInString(stripped) > 40 {
		return ""
	}
	candidate := strings.TrimRight(stripped, trailingDecoration)
	if candidate == "" {
		return ""
	}
	noSpaces := strings.ReplaceAll(candidate, " ", "")

	for _, kw := range headerKeywords {
		if strings.HasPrefix(candidate, kw) {
			return candidate
		}
	}

	lower := strings.ToLower(candidate)
	if strings.HasPrefix(lower, "chapter") {
		return titleCase(candidate)
	}

	tokens := strings.Fields(candidate)

	if strings.HasPrefix(candidate, "第") && containsAny(candidate, splitRunes(chapterKeywords)) {
		if len(tokens) > 1 && looksLikeNumericToken(tokens[len(tokens)-1]) {
			return tokens[0] + " · " + tokens[len(tokens)-1]
		}
		if len(tokens) > 0 {
			return tokens[0]
		}
		return candidate
	}

	if len(tokens) == 1 && looksLikeNumericToken(tokens[0]) {
		return tokens[0]
	}

	if len(tokens) == 2 && containsAny(tokens[0], splitRunes(chapterKeywords)) && looksLikeNumericToken(tokens[1]) {
		return tokens[0] + " · " + tokens[1]
	}

	if looksLikeNumericToken(noSpaces) && utf8.RuneCountInString(noSpaces) <= 6 {
		return noSpaces
	}

	for _, pattern := range chapterPatterns {
		m := pattern.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		var groups []string
		for _, g := range m[1:] {
			if g != "" {
				groups = append(groups, g)
			}
		}
		return strings.TrimSpace(strings.Join(groups, " "))
	}

	return ""
}

func looksLikeNumericToken(token string) bool {
	stripped := strings.Trim(token, "()（）．.、，：:—-")
	if stripped == "" {
		return false
	}
	if isAllRunesIn(stripped, chineseNumerals) {
		return true
	}
	if isAllDigits(stripped) {
		return true
	}
	if romanNumeralPattern.MatchString(stripped) {
		return true
	}
	return false
}

func isAllRunesIn(s, set string) bool {
	for _, r := range s {
		if !strings.ContainsRune(set, r) {
			return false
		}
	}
	return true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func containsAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func sanitizeTitle(path, title string) string {
	trimmed := strings.TrimSpace(title)
	if utf8.RuneCountInString(trimmed) > maxTitleLength {
		log.Printf("parser: chapter title too long (%d runes), truncating to %d for %s",
			utf8.RuneCountInString(trimmed), maxTitleLength, path)
		runes := []rune(trimmed)
		return string(runes[:maxTitleLength])
	}
	return trimmed
}

func cleanText(text string) string {
	cleaned := strings.ReplaceAll(text, "\r", "")
	for _, ch := range zeroWidthChars {
		cleaned = strings.ReplaceAll(cleaned, ch, "")
	}
	cleaned = collapseSpaceTab.ReplaceAllString(cleaned, " ")

	lines := strings.Split(cleaned, "\n")
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, "\n")
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type lineOffset struct {
	start int
	line  string
}

// iterLineOffsets splits text the way Python's str.splitlines(keepends=True)
// would: on \n, \r\n, or bare \r, keeping the terminator attached so that
// start+len(line) is the byte offset of the next line.
func iterLineOffsets(text string) []lineOffset {
	var out []lineOffset
	start := 0
	i := 0
	n := len(text)
	for i < n {
		switch text[i] {
		case '\n':
			out = append(out, lineOffset{start, text[start : i+1]})
			i++
			start = i
		case '\r':
			end := i + 1
			if end < n && text[end] == '\n' {
				end++
			}
			out = append(out, lineOffset{start, text[start:end]})
			i = end
			start = i
		default:
			i++
		}
	}
	if start < n {
		out = append(out, lineOffset{start, text[start:]})
	}
	return out
}
