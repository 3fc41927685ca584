package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ErrHeaderless is returned when the input has no header row with at
	// least one named column.
	ErrHeaderless = errors.New("no header row detected")

	// ErrMalformed is returned for input the tokenizer cannot read, such as
	// unterminated quotes or invalid UTF-8.
	ErrMalformed = errors.New("malformed csv")
)

// ContextCheckInterval is how many records are read between context checks.
var ContextCheckInterval = 100

// ParseOptions controls the parser.
type ParseOptions struct {
	// MaxBytes caps the input size. Zero means unlimited.
	MaxBytes int64

	// SanitizeUTF8 replaces invalid UTF-8 bytes with '?' instead of failing.
	SanitizeUTF8 bool
}

// Result is a fully parsed file plus statistics the UI reports back.
type Result struct {
	Store *Store

	// ExtraFields counts cells beyond the header width that were dropped.
	ExtraFields int

	// ShortRows counts rows with fewer cells than the header.
	ShortRows int

	// BlankLines counts whitespace-only lines skipped before the header.
	BlankLines int

	// Renamed maps renamed duplicate headers to their original name.
	Renamed map[string]string

	BytesRead int64
}

// Parse reads a CSV stream record by record. The first non-blank record is
// the header; each later record becomes a Row keyed by header name with
// inferred scalar values. Once the header is known a record holding a single
// empty or whitespace cell is still a Row, so single-column files keep their
// empty cells. Rows shorter than the header leave the missing keys
// absent. Nothing is returned until the whole stream has been read.
func Parse(ctx context.Context, r io.Reader, opts ParseOptions) (*Result, error) {
	src, counter := wrapReader(r, opts)

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	res := &Result{}

	var header []string
	var rows []Row
	for n := 0; ; n++ {
		if n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapReadError(err)
		}

		line, _ := reader.FieldPos(0)
		if !opts.SanitizeUTF8 {
			if err := checkUTF8(record, line); err != nil {
				return nil, err
			}
		}

		if header == nil {
			if isBlankRecord(record) {
				res.BlankLines++
				continue
			}
			if allBlank(record) {
				return nil, fmt.Errorf("%w: line %d has no column names", ErrHeaderless, line)
			}
			header, res.Renamed = uniqueHeader(record)
			continue
		}

		row := make(Row, len(header))
		for i, raw := range record {
			if i >= len(header) {
				res.ExtraFields += len(record) - len(header)
				break
			}
			row[header[i]] = Infer(raw)
		}
		if len(record) < len(header) {
			res.ShortRows++
		}
		rows = append(rows, row)
	}

	if header == nil {
		return nil, ErrHeaderless
	}

	res.Store = NewStore(header, rows)
	res.BytesRead = counter.BytesRead
	return res, nil
}

// wrapReadError maps tokenizer errors onto the package sentinels.
func wrapReadError(err error) error {
	if errors.Is(err, ErrFileTooLarge) {
		return err
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: line %d, column %d: %v", ErrMalformed, pe.StartLine, pe.Column, pe.Err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func checkUTF8(record []string, line int) error {
	for i, field := range record {
		if !utf8.ValidString(field) {
			return fmt.Errorf("%w: line %d, field %d: invalid UTF-8 encoding", ErrMalformed, line, i+1)
		}
	}
	return nil
}

// uniqueHeader copies the header record and renames duplicates to name_1,
// name_2, ... skipping names that are already taken.
func uniqueHeader(record []string) ([]string, map[string]string) {
	header := make([]string, len(record))
	seen := make(map[string]bool, len(record))
	for _, name := range record {
		seen[name] = false
	}

	var renamed map[string]string
	for i, name := range record {
		if taken, ok := seen[name]; ok && !taken {
			seen[name] = true
			header[i] = name
			continue
		}

		candidate := name
		for n := 1; ; n++ {
			candidate = name + "_" + strconv.Itoa(n)
			if _, exists := seen[candidate]; !exists {
				break
			}
		}
		seen[candidate] = true
		header[i] = candidate
		if renamed == nil {
			renamed = make(map[string]string)
		}
		renamed[candidate] = name
	}
	return header, renamed
}

func isBlankRecord(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}

func allBlank(names []string) bool {
	for _, n := range names {
		if strings.TrimSpace(n) != "" {
			return false
		}
	}
	return true
}
