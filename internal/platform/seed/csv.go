// Package seed reads the CSV reference files shipped in data/ and maps their
// legacy identifiers onto stable UUIDs.
package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// namespace roots the name-based UUIDs derived from legacy CSV ids.
var namespace = uuid.MustParse("6f1c8f0e-9a8b-4a57-bb53-0d6c6c9f3a10")

// ID returns raw when it already is a UUID and otherwise a deterministic UUID
// derived from kind and raw, so re-running a seed updates instead of
// duplicating rows.
func ID(kind, raw string) uuid.UUID {
	raw = strings.TrimSpace(raw)
	if id, err := uuid.Parse(raw); err == nil {
		return id
	}
	return uuid.NewSHA1(namespace, []byte(kind+":"+raw))
}

// Each reads a CSV stream, skips its header row and calls fn with every
// record of at least minFields fields, trimmed. Shorter rows are skipped.
func Each(r io.Reader, minFields int, fn func(line int, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		line++
		if line == 1 || len(rec) < minFields {
			continue
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if err := fn(line, rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}
