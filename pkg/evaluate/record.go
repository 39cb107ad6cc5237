package evaluate

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single input record
const maxLineSize = 4 * 1024 * 1024

// Record is one labelled document
type Record struct {
	Label string
	Text  string
}

// ParseRecord splits a "label<TAB>text" line. A line without a tab is a
// label with no text. ok is false for blank lines.
func ParseRecord(line string) (rec Record, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Record{}, false
	}

	label, text, _ := strings.Cut(line, "\t")
	return Record{Label: strings.TrimSpace(label), Text: text}, true
}

// ReadRecords streams the records of r to fn, stopping at the first error
func ReadRecords(r io.Reader, fn func(Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		rec, ok := ParseRecord(scanner.Text())
		if !ok {
			continue
		}
		if rec.Label == "" {
			return fmt.Errorf("line %d: record has no label", lineNum)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read records after line %d: %w", lineNum, err)
	}
	return nil
}
