package walker

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/vasekit/vase/internal/tabix"
)

// Fetcher performs independent index-assisted random-access retrieval. It
// keeps no cross-query state and is the fallback when queries are not in
// coordinate order or walking is disabled.
type Fetcher struct {
	cur    *Cursor
	idx    *tabix.Index
	parse  ParseFunc
	logger *zap.Logger
}

// NewFetcher returns a Fetcher over cur using idx and parse.
func NewFetcher(cur *Cursor, idx *tabix.Index, parse ParseFunc) *Fetcher {
	return &Fetcher{cur: cur, idx: idx, parse: parse, logger: zap.NewNop()}
}

// SetLogger sets the logger used to report skipped malformed rows.
func (f *Fetcher) SetLogger(l *zap.Logger) { f.logger = l }

// Fetch returns the records overlapping the zero-based half-open interval
// [start,end) on contig. An absent contig yields an empty result.
func (f *Fetcher) Fetch(contig string, start, end int64) ([]Record, error) {
	span, ok := f.idx.ChunkSpan(contig, start, end)
	if !ok {
		return nil, nil
	}
	if err := f.cur.Seek(span.Begin); err != nil {
		return nil, fmt.Errorf("fetch: seek %s:%d-%d: %w", contig, start, end, err)
	}
	var recs []Record
	for {
		line, err := f.cur.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetch: read %s:%d-%d: %w", contig, start, end, err)
		}
		rec, err := f.parse(line)
		if err != nil {
			f.logger.Warn("skipping malformed reference row", zap.Error(err))
			continue
		}
		if rec.Pos > end || f.cur.Tell() > tabix.VOffset(span.End) {
			break
		}
		if rec.Stop >= start {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}
