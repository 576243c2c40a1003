package refsrc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasekit/vase/internal/tabix"
	"github.com/vasekit/vase/internal/walker"
)

func testParse(line string) (walker.Record, error) {
	fields, err := walker.SplitRow(line, 4)
	if err != nil {
		return walker.Record{}, err
	}
	pos, err := walker.ParsePos(line, fields, 1)
	if err != nil {
		return walker.Record{}, err
	}
	return walker.Record{
		Pos:    pos,
		Stop:   pos + int64(len(fields[2])) - 1,
		Fields: fields,
	}, nil
}

var testColumns = tabix.BuildOpts{SeqCol: 1, BegCol: 2, RefCol: 3, Meta: '#'}

func writeRef(t *testing.T, dir, name string, rows []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bgzf.NewWriter(f, 1)
	for _, row := range rows {
		_, err := w.Write([]byte(row + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func writeIndexedRef(t *testing.T, dir, name string, rows []string) string {
	t.Helper()
	path := writeRef(t, dir, name, rows)
	_, err := tabix.Build(path, testColumns)
	require.NoError(t, err)
	return path
}

func TestOpenAndSearch(t *testing.T) {
	path := writeIndexedRef(t, t.TempDir(), "ref.tsv.gz", []string{
		"1\t100\tA\tG",
		"1\t200\tC\tT",
	})
	rf, err := Open(path, Options{Parse: testParse})
	require.NoError(t, err)
	defer rf.Close()

	assert.False(t, rf.HasChr())

	recs, err := rf.Search("1", 99, 100)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(100), recs[0].Pos)
}

func TestOpenMissingIndex(t *testing.T) {
	path := writeRef(t, t.TempDir(), "ref.tsv.gz", []string{"1\t100\tA\tG"})

	_, err := Open(path, Options{Parse: testParse})
	var ferr *tabix.FormatError
	require.ErrorAs(t, err, &ferr)

	rf, err := Open(path, Options{
		Parse:             testParse,
		BuildMissingIndex: true,
		BuildColumns:      testColumns,
	})
	require.NoError(t, err)
	defer rf.Close()
	assert.FileExists(t, path+tabix.Suffix)

	recs, err := rf.Search("1", 99, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOpenRejectsMixedContigNames(t *testing.T) {
	path := writeIndexedRef(t, t.TempDir(), "mixed.tsv.gz", []string{
		"1\t100\tA\tG",
		"chr2\t100\tC\tT",
	})
	_, err := Open(path, Options{Parse: testParse})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, path, cerr.Path)
}

func TestConvertContig(t *testing.T) {
	dir := t.TempDir()
	bare := writeIndexedRef(t, dir, "bare.tsv.gz", []string{"1\t100\tA\tG"})
	pref := writeIndexedRef(t, dir, "pref.tsv.gz", []string{"chr1\t100\tA\tG"})

	rf, err := Open(bare, Options{Parse: testParse})
	require.NoError(t, err)
	defer rf.Close()
	assert.Equal(t, "1", rf.ConvertContig("chr1"))
	assert.Equal(t, "1", rf.ConvertContig("1"))

	cf, err := Open(pref, Options{Parse: testParse})
	require.NoError(t, err)
	defer cf.Close()
	assert.True(t, cf.HasChr())
	assert.Equal(t, "chr1", cf.ConvertContig("1"))
	assert.Equal(t, "chr1", cf.ConvertContig("chr1"))

	// Queries hit via conversion in both directions.
	recs, err := rf.Search("chr1", 99, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	recs, err = cf.Search("1", 99, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOpenSetDirectory(t *testing.T) {
	dir := t.TempDir()
	writeIndexedRef(t, dir, "a.tsv.gz", []string{"1\t100\tA\tG"})
	writeIndexedRef(t, dir, "b.tsv.bgz", []string{"1\t100\tA\tT"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	s, err := OpenSet(nil, dir, Options{Parse: testParse})
	require.NoError(t, err)
	defer s.Close()
	require.Len(t, s.Files(), 2)

	recs, err := s.Search("1", 99, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "results concatenate across files")
}

func TestOpenSetEmptyDirectory(t *testing.T) {
	_, err := OpenSet(nil, t.TempDir(), Options{Parse: testParse})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "no .gz or .bgz")
}

func TestOpenSetNoFiles(t *testing.T) {
	_, err := OpenSet(nil, "", Options{Parse: testParse})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestSearchAbsentContig(t *testing.T) {
	path := writeIndexedRef(t, t.TempDir(), "ref.tsv.gz", []string{"1\t100\tA\tG"})
	rf, err := Open(path, Options{Parse: testParse, NoWalk: true})
	require.NoError(t, err)
	defer rf.Close()

	recs, err := rf.Search("22", 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
