package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// WriteOptions controls the serializer.
type WriteOptions struct {
	// UseCRLF terminates lines with \r\n instead of \n.
	UseCRLF bool
}

// Write serializes rows as CSV: a header line equal to fields, then one line
// per row with values in field order. Quoting follows RFC 4180. A row that is
// a single empty cell is written as "" so it survives a re-read.
func Write(w io.Writer, fields []string, rows []Row, opts WriteOptions) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = opts.UseCRLF

	emptyLine := "\"\"\n"
	if opts.UseCRLF {
		emptyLine = "\"\"\r\n"
	}

	if err := cw.Write(fields); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(fields))
	for i, row := range rows {
		for j, name := range fields {
			record[j] = row.Get(name).Text()
		}
		if len(record) == 1 && record[0] == "" {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
			if _, err := io.WriteString(w, emptyLine); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
			continue
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Marshal is Write into a byte slice.
func Marshal(fields []string, rows []Row, opts WriteOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, fields, rows, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
