// Package lrc reads and writes timestamped lyric files in the LRC format:
// one "[mm:ss.xx]text" entry per line.
package lrc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"lrcforge/internal/fileutil"
)

// Line is a single lyric line and the offset at which it starts.
type Line struct {
	Offset time.Duration
	Text   string
}

// NewLine trims and NFC-normalizes text.
func NewLine(offset time.Duration, text string) Line {
	if offset < 0 {
		offset = 0
	}
	return Line{Offset: offset, Text: CleanText(text)}
}

// CleanText normalizes whitespace and Unicode composition for a lyric line.
func CleanText(text string) string {
	text = norm.NFC.String(text)
	return strings.Join(strings.Fields(text), " ")
}

// Timestamp renders the line offset as "[mm:ss.xx]".
func (l Line) Timestamp() string {
	return FormatTimestamp(l.Offset)
}

// Millis returns the offset in whole milliseconds.
func (l Line) Millis() int64 {
	return l.Offset.Milliseconds()
}

// String renders the full LRC entry.
func (l Line) String() string {
	return l.Timestamp() + l.Text
}

// FormatTimestamp renders d as "[mm:ss.xx]", rounding to centiseconds.
// Minutes are not wrapped into hours.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := (d + 5*time.Millisecond) / (10 * time.Millisecond)
	minutes := cs / 6000
	rem := cs % 6000
	return fmt.Sprintf("[%02d:%02d.%02d]", minutes, rem/100, rem%100)
}

var (
	timeTag  = regexp.MustCompile(`^\[(\d+):(\d{1,2})(?:[.:](\d{1,3}))?\]`)
	metaLine = regexp.MustCompile(`^\[[a-zA-Z#]+:.*\]$`)
)

// Parse reads LRC entries. Metadata tags such as [ar:...] are ignored, lines
// with several leading timestamps expand into one Line per timestamp, and the
// result is ordered by offset. Lines without text are dropped.
func Parse(r io.Reader) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if raw == "" || metaLine.MatchString(raw) {
			continue
		}
		var offsets []time.Duration
		for {
			m := timeTag.FindStringSubmatch(raw)
			if m == nil {
				break
			}
			offsets = append(offsets, parseOffset(m[1], m[2], m[3]))
			raw = raw[len(m[0]):]
		}
		text := CleanText(raw)
		if len(offsets) == 0 || text == "" {
			continue
		}
		for _, off := range offsets {
			lines = append(lines, Line{Offset: off, Text: text})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lrc: %w", err)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Offset < lines[j].Offset })
	return lines, nil
}

func parseOffset(min, sec, frac string) time.Duration {
	m, _ := strconv.Atoi(min)
	s, _ := strconv.Atoi(sec)
	d := time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	if frac != "" {
		f, _ := strconv.Atoi(frac)
		switch len(frac) {
		case 1:
			d += time.Duration(f) * 100 * time.Millisecond
		case 2:
			d += time.Duration(f) * 10 * time.Millisecond
		default:
			d += time.Duration(f) * time.Millisecond
		}
	}
	return d
}

// ParseFile parses the LRC file at path.
func ParseFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lrc: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Write renders lines as LRC, newline separated.
func Write(w io.Writer, lines []Line) error {
	bw := bufio.NewWriter(w)
	for i, line := range lines {
		if i > 0 {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(line.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes lines to path via a temporary file so readers never see a
// partial lyric file.
func WriteFile(path string, lines []Line) error {
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return Write(w, lines)
	})
	if err != nil {
		return fmt.Errorf("write lrc: %w", err)
	}
	return nil
}

// PlainText joins line texts, one per line, for unsynchronised lyric frames.
func PlainText(lines []Line) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}
