// Package writer appends rows to delimited text files.
package writer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	"unicode/utf8"
)

const timeLayout = "2006-01-02 15:04:05.999999999"

var ErrInvalidDelimiter = errors.New("invalid delimiter")

// ValidDelimiter reports whether d can separate fields in a single-line
// record and still be read back.
func ValidDelimiter(d rune) error {
	if d == 0 || d == '"' || d == '\r' || d == '\n' || d == utf8.RuneError || !utf8.ValidRune(d) {
		return fmt.Errorf("%w: %q", ErrInvalidDelimiter, d)
	}

	return nil
}

// Create truncates the file at path, creating it if needed, so a destination
// never carries rows from an earlier export.
func Create(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	return f.Close()
}

// Append writes rows to the end of the file at path, creating it if needed,
// and returns the number of rows written. Fields containing the delimiter,
// quotes or line breaks are quoted. There is no header row. The file is
// closed before Append returns so callers can stream one batch at a time.
func Append(path string, delimiter rune, rows [][]any) (int, error) {
	if err := ValidDelimiter(delimiter); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	w.Comma = delimiter

	written := 0
	record := make([]string, 0)
	for _, row := range rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, Format(v))
		}
		if len(record) == 1 && record[0] == "" {
			// A lone empty field would be a blank line, which readers skip.
			w.Flush()
			if err = w.Error(); err == nil {
				_, err = f.WriteString(`""` + "\n")
			}
		} else {
			err = w.Write(record)
		}
		if err != nil {
			break
		}
		written++
	}
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return written, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return written, nil
}

// Format renders a scanned column value as field text. NULL is empty.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(timeLayout)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
