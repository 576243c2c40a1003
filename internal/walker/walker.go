package walker

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/vasekit/vase/internal/tabix"
)

// DefaultRegionLimit is the query width (in bases) below which scanned
// records are retained in the lookahead buffer for reuse by the next query.
// Wider queries are not buffered, to bound memory.
const DefaultRegionLimit = 1000

// OutOfOrderError reports a walked query whose start precedes the previous
// query's start on the same contig. Walked queries must be issued in
// non-decreasing coordinate order; this is a caller contract violation.
type OutOfOrderError struct {
	Contig string
	Start  int64
	Prev   int64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("walker: query start %d on %s precedes previous query start %d; walked queries must be in coordinate order",
		e.Start, e.Contig, e.Prev)
}

// Walker performs sequential, cursor-based retrieval over one reference
// file. It owns its cursor state and must not be shared across files or
// goroutines.
type Walker struct {
	cur    *Cursor
	idx    *tabix.Index
	parse  ParseFunc
	logger *zap.Logger

	contig      string
	lastStart   int64
	buffer      []Record
	reseek      bool
	regionLimit int64
}

// New returns a Walker over cur using idx for chunk lookup and parse for row
// normalization.
func New(cur *Cursor, idx *tabix.Index, parse ParseFunc) *Walker {
	return &Walker{
		cur:         cur,
		idx:         idx,
		parse:       parse,
		logger:      zap.NewNop(),
		lastStart:   -1,
		reseek:      true,
		regionLimit: DefaultRegionLimit,
	}
}

// SetLogger sets the logger used to report skipped malformed rows.
func (w *Walker) SetLogger(l *zap.Logger) { w.logger = l }

// SetRegionLimit overrides the buffering width threshold.
func (w *Walker) SetRegionLimit(n int64) { w.regionLimit = n }

// Next returns the records overlapping the zero-based half-open interval
// [start,end) on contig. Successive calls on the same contig must have
// non-decreasing start coordinates; switching contigs resets the walk.
// An absent contig yields an empty result.
func (w *Walker) Next(contig string, start, end int64) ([]Record, error) {
	if w.contig != contig {
		w.contig = contig
		w.reseek = true
		w.buffer = w.buffer[:0]
		w.lastStart = -1
	} else if start < w.lastStart {
		return nil, &OutOfOrderError{Contig: contig, Start: start, Prev: w.lastStart}
	}
	if !w.idx.Has(contig) {
		return nil, nil
	}
	w.lastStart = start

	span, ok := w.idx.ChunkSpan(contig, start, end)
	if !ok {
		return nil, nil
	}
	useBuffer := 1+end-start < w.regionLimit

	var recs []Record
	if w.reseek || tabix.VOffset(span.Begin) > w.cur.Tell() {
		if err := w.cur.Seek(span.Begin); err != nil {
			return nil, fmt.Errorf("walker: seek %s:%d-%d: %w", contig, start, end, err)
		}
	} else if n := len(w.buffer); n > 0 && start < w.buffer[n-1].Stop {
		for _, rec := range w.buffer {
			if rec.Pos > end {
				break
			}
			if rec.Stop >= start {
				recs = append(recs, rec)
			}
		}
	}

	if n := len(w.buffer); n == 0 || w.buffer[n-1].Pos <= end {
		w.buffer = w.buffer[:0]
		for {
			line, err := w.cur.ReadLine()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("walker: read %s:%d-%d: %w", contig, start, end, err)
			}
			rec, err := w.parse(line)
			if err != nil {
				w.logger.Warn("skipping malformed reference row", zap.Error(err))
				continue
			}
			if rec.Pos > end || w.cur.Tell() > tabix.VOffset(span.End) {
				if useBuffer {
					w.buffer = append(w.buffer, rec)
				}
				break
			}
			if rec.Stop >= start {
				recs = append(recs, rec)
				if useBuffer {
					w.buffer = append(w.buffer, rec)
				}
			}
		}
	}
	w.reseek = !useBuffer
	return recs, nil
}
