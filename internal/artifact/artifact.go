// Package artifact turns a downloaded CSV payload into rows and persists them
// as one file per (country, year).
//
// Lines are split on commas without honoring quotes, so quoted fields that
// contain commas are split apart. This mirrors how the datasets have always
// been stored and is kept on purpose.
//
// Rows are written back in the excel dialect: comma separated, CRLF
// terminated, a field quoted only when it holds a comma, a quote or a line
// break, and a row made of one empty field written as "".
package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	minScanBuffer  = 64 * 1024
	lineTerminator = "\r\n"
)

var ErrInvalidEncoding = errors.New("artifact: payload is not valid utf-8")

// Rows decodes payload as UTF-8 text and splits every line on commas. Lines
// end at "\r\n", "\n" or a bare "\r"; a final terminator does not add an empty
// line. Line length is only bounded by the payload itself.
func Rows(payload []byte) ([][]string, error) {
	if !utf8.Valid(payload) {
		return nil, ErrInvalidEncoding
	}

	rows := make([][]string, 0)
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, minScanBuffer), max(len(payload)+1, minScanBuffer))
	scanner.Split(scanLines)
	for scanner.Scan() {
		rows = append(rows, strings.Split(scanner.Text(), ","))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("artifact: split lines: %w", err)
	}
	return rows, nil
}

// scanLines is bufio.ScanLines extended to treat a lone '\r' as a line end.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if !atEOF {
			// need one more byte to tell "\r" from "\r\n"
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// EncodeRow renders one row without its terminator.
func EncodeRow(row []string) string {
	if len(row) == 1 && row[0] == "" {
		return `""`
	}
	fields := make([]string, len(row))
	for i, field := range row {
		if strings.ContainsAny(field, ",\"\r\n") {
			field = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
		}
		fields[i] = field
	}
	return strings.Join(fields, ",")
}

type Writer struct {
	Root string
}

func NewWriter(root string) *Writer {
	return &Writer{Root: root}
}

func (w *Writer) Dir(country string) string {
	return filepath.Join(w.Root, country)
}

func (w *Writer) Path(country string, year int) string {
	return filepath.Join(w.Dir(country), strconv.Itoa(year)+".csv")
}

// Write creates or truncates the artifact for (country, year) and returns the
// path and the number of bytes written. The country directory must exist.
func (w *Writer) Write(country string, year int, rows [][]string) (string, int, error) {
	var buf bytes.Buffer
	for _, row := range rows {
		buf.WriteString(EncodeRow(row))
		buf.WriteString(lineTerminator)
	}

	path := w.Path(country, year)
	file, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	n, err := file.Write(buf.Bytes())
	if err != nil {
		_ = file.Close()
		return "", n, err
	}
	if err := file.Close(); err != nil {
		return "", n, err
	}
	return path, n, nil
}
