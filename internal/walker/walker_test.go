package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasekit/vase/internal/tabix"
)

// testParse expects contig, pos, ref, alt columns.
func testParse(line string) (Record, error) {
	fields, err := SplitRow(line, 4)
	if err != nil {
		return Record{}, err
	}
	pos, err := ParsePos(line, fields, 1)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Pos:     pos,
		Stop:    pos + int64(len(fields[2])) - 1,
		Alleles: []Allele{{Pos: pos, Ref: fields[2], Alt: fields[3]}},
		Fields:  fields,
	}, nil
}

var testColumns = tabix.BuildOpts{SeqCol: 1, BegCol: 2, RefCol: 3, Meta: '#'}

func writeIndexed(t *testing.T, rows []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.tsv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bgzf.NewWriter(f, 1)
	for _, row := range rows {
		_, err := w.Write([]byte(row + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	_, err = tabix.Build(path, testColumns)
	require.NoError(t, err)
	return path
}

func openCursor(t *testing.T, path string) (*Cursor, *tabix.Index) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	bg, err := bgzf.NewReader(f, 0)
	require.NoError(t, err)
	t.Cleanup(func() { bg.Close() })
	idx, err := tabix.Load(path + tabix.Suffix)
	require.NoError(t, err)
	return NewCursor(bg), idx
}

var testRows = []string{
	"#contig\tpos\tref\talt",
	"1\t100\tA\tG",
	"1\t150\tAT\tA",
	"1\t200\tC\tT",
	"1\t220\tG\tC",
	"1\t500\tT\tA",
	"1\t800\tGCA\tG",
	"1\t20000\tA\tC",
	"2\t120\tC\tG",
	"2\t450\tT\tC",
}

func TestWalkMatchesFetch(t *testing.T) {
	path := writeIndexed(t, testRows)

	wcur, widx := openCursor(t, path)
	w := New(wcur, widx, testParse)
	fcur, fidx := openCursor(t, path)
	f := NewFetcher(fcur, fidx, testParse)

	queries := []struct {
		contig     string
		start, end int64
	}{
		{"1", 99, 100},
		{"1", 149, 151},
		{"1", 199, 200},
		{"1", 199, 200}, // repeat of the previous interval
		{"1", 219, 220},
		{"1", 400, 450},  // no overlapping records
		{"1", 499, 2000}, // wide, not buffered
		{"1", 799, 802},
		{"1", 19999, 20000},
		{"2", 119, 120},
		{"2", 449, 450},
	}
	for _, q := range queries {
		want, err := f.Fetch(q.contig, q.start, q.end)
		require.NoError(t, err)
		got, err := w.Next(q.contig, q.start, q.end)
		require.NoError(t, err)
		assert.Equal(t, want, got, "query %s:%d-%d", q.contig, q.start, q.end)
	}
}

func TestWalkerRepeatedQueryIdempotent(t *testing.T) {
	path := writeIndexed(t, testRows)
	cur, idx := openCursor(t, path)
	w := New(cur, idx, testParse)

	first, err := w.Next("1", 149, 151)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, int64(150), first[0].Pos)

	second, err := w.Next("1", 149, 151)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWalkerOutOfOrder(t *testing.T) {
	path := writeIndexed(t, testRows)
	cur, idx := openCursor(t, path)
	w := New(cur, idx, testParse)

	_, err := w.Next("1", 499, 501)
	require.NoError(t, err)

	_, err = w.Next("1", 99, 100)
	var oerr *OutOfOrderError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, "1", oerr.Contig)
	assert.Equal(t, int64(99), oerr.Start)
	assert.Equal(t, int64(499), oerr.Prev)
}

func TestWalkerContigSwitchResets(t *testing.T) {
	path := writeIndexed(t, testRows)
	cur, idx := openCursor(t, path)
	w := New(cur, idx, testParse)

	recs, err := w.Next("1", 499, 501)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = w.Next("2", 119, 120)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].Fields[0])

	// Back on contig 1 with an earlier start: the switch reset the order
	// contract, so this is not out of order.
	recs, err = w.Next("1", 99, 100)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(100), recs[0].Pos)
}

func TestWalkerAbsentContig(t *testing.T) {
	path := writeIndexed(t, testRows)
	cur, idx := openCursor(t, path)
	w := New(cur, idx, testParse)

	recs, err := w.Next("MT", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWalkerSkipsMalformedRows(t *testing.T) {
	rows := []string{
		"1\t100\tA\tG",
		"1\t150\tAT", // too few columns for the parser
		"1\t200\tC\tT",
	}
	path := writeIndexed(t, rows)
	cur, idx := openCursor(t, path)
	w := New(cur, idx, testParse)

	recs, err := w.Next("1", 99, 201)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(100), recs[0].Pos)
	assert.Equal(t, int64(200), recs[1].Pos)
}

func TestFetcherAnyOrder(t *testing.T) {
	path := writeIndexed(t, testRows)
	cur, idx := openCursor(t, path)
	f := NewFetcher(cur, idx, testParse)

	recs, err := f.Fetch("1", 799, 802)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(800), recs[0].Pos)

	// Fetching backwards is fine without walking.
	recs, err = f.Fetch("1", 99, 100)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(100), recs[0].Pos)
}
