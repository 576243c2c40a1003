// Package walker retrieves records overlapping query intervals from
// BGZF-compressed, tabix-indexed reference files. The Walker exploits
// coordinate-ordered queries with a sequential cursor and lookahead buffer;
// the Fetcher performs independent index-assisted random access.
package walker

import (
	"fmt"
	"strconv"
	"strings"
)

// Allele is one normalized ref/alt pair from a reference row.
type Allele struct {
	Pos int64 // 1-based position after reduction
	Ref string
	Alt string
}

// Record is a normalized reference row. Pos and Stop bound the record's
// 1-based inclusive genomic interval; Fields holds the raw tab-split columns
// for source-specific value extraction.
type Record struct {
	Pos     int64
	Stop    int64
	Alleles []Allele
	Fields  []string
}

// ParseFunc turns one raw reference row into a normalized Record.
// Unparseable rows return a *MalformedRecordError; the caller logs and skips.
type ParseFunc func(line string) (Record, error)

// MalformedRecordError reports a reference row that cannot be normalized.
type MalformedRecordError struct {
	Line   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("walker: malformed reference row (%s): %q", e.Reason, e.Line)
}

// Reduce trims shared trailing then leading bases from ref/alt while both
// retain more than one base, advancing pos for each trimmed leading base.
func Reduce(pos int64, ref, alt string) (int64, string, string) {
	for len(ref) > 1 && len(alt) > 1 && ref[len(ref)-1] == alt[len(alt)-1] {
		ref = ref[:len(ref)-1]
		alt = alt[:len(alt)-1]
	}
	for len(ref) > 1 && len(alt) > 1 && ref[0] == alt[0] {
		ref = ref[1:]
		alt = alt[1:]
		pos++
	}
	return pos, ref, alt
}

// SplitRow tab-splits a row, requiring at least minCols columns.
func SplitRow(line string, minCols int) ([]string, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < minCols {
		return nil, &MalformedRecordError{
			Line:   line,
			Reason: fmt.Sprintf("%d columns, need %d", len(fields), minCols),
		}
	}
	return fields, nil
}

// ParsePos parses the 1-based position in the given column.
func ParsePos(line string, fields []string, col int) (int64, error) {
	pos, err := strconv.ParseInt(fields[col], 10, 64)
	if err != nil {
		return 0, &MalformedRecordError{Line: line, Reason: "bad position " + fields[col]}
	}
	return pos, nil
}
