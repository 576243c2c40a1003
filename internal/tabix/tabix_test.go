package tabix

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeBGZF writes lines to a BGZF-compressed file and returns its path.
func writeBGZF(t *testing.T, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bgzf.NewWriter(f, 1)
	for _, line := range lines {
		_, err := w.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestBuildAndLoad(t *testing.T) {
	path := writeBGZF(t, "ref.vcf.gz", []string{
		"#CHROM\tPOS\tID\tREF\tALT",
		"1\t100\trs1\tA\tG",
		"1\t250\trs2\tAT\tA",
		"1\t20000\trs3\tC\tT",
		"2\t150\trs4\tG\tC",
	})

	idxPath, err := Build(path, VCFColumns)
	require.NoError(t, err)
	assert.Equal(t, path+Suffix, idxPath)

	idx, err := Load(idxPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, idx.Names())
	assert.True(t, idx.Has("1"))
	assert.True(t, idx.Has("2"))
	assert.False(t, idx.Has("chr1"))
	assert.Equal(t, int32(1), idx.SeqCol)
	assert.Equal(t, int32(2), idx.BegCol)
	assert.Equal(t, byte('#'), idx.Meta)
}

func TestChunkSpan(t *testing.T) {
	path := writeBGZF(t, "ref.vcf.gz", []string{
		"1\t100\t.\tA\tG",
		"1\t200\t.\tC\tT",
		"1\t20000\t.\tG\tA",
	})
	_, err := Build(path, VCFColumns)
	require.NoError(t, err)
	idx, err := Load(path + Suffix)
	require.NoError(t, err)

	span, ok := idx.ChunkSpan("1", 0, 300)
	require.True(t, ok)
	assert.LessOrEqual(t, VOffset(span.Begin), VOffset(span.End))

	_, ok = idx.ChunkSpan("7", 0, 300)
	assert.False(t, ok, "absent contig must yield no span")
}

func TestBuildRejectsUnsortedInput(t *testing.T) {
	path := writeBGZF(t, "unsorted.vcf.gz", []string{
		"1\t500\t.\tA\tG",
		"1\t100\t.\tC\tT",
	})
	_, err := Build(path, VCFColumns)
	assert.ErrorContains(t, err, "out of order")

	path = writeBGZF(t, "split.vcf.gz", []string{
		"1\t100\t.\tA\tG",
		"2\t100\t.\tC\tT",
		"1\t200\t.\tG\tA",
	})
	_, err = Build(path, VCFColumns)
	assert.ErrorContains(t, err, "out of order")
}

func TestLoadMissingIndex(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nothing.gz.tbi"))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.tbi")
	require.NoError(t, os.WriteFile(path, []byte("this is not an index"), 0644))

	_, err := Load(path)
	var ferr *FormatError
	assert.ErrorAs(t, err, &ferr)
}

func TestLoadBadMagic(t *testing.T) {
	// Valid BGZF container, wrong payload magic.
	path := writeBGZF(t, "badmagic.tbi", []string{"CSI nonsense"})
	_, err := Load(path)
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.ErrorContains(t, err, "magic")
}

func TestReg2Bin(t *testing.T) {
	tests := []struct {
		beg, end int64
		want     uint32
	}{
		{0, 1, 4681},
		{0, 16384, 4681},
		{16384, 16385, 4682},
		{0, 16385, 585},
		{0, 1 << 17, 585},
		{0, 1 << 20, 73},
		{0, 1 << 23, 9},
		{0, 1 << 26, 1},
		{0, 1 << 29, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reg2bin(tt.beg, tt.end), "reg2bin(%d,%d)", tt.beg, tt.end)
	}
}

func TestReg2Bins(t *testing.T) {
	bins := reg2bins(0, 1)
	assert.Contains(t, bins, uint32(0))
	assert.Contains(t, bins, uint32(1))
	assert.Contains(t, bins, uint32(9))
	assert.Contains(t, bins, uint32(73))
	assert.Contains(t, bins, uint32(585))
	assert.Contains(t, bins, uint32(4681))

	assert.Empty(t, reg2bins(100, 100))
	assert.Empty(t, reg2bins(200, 100))

	bins = reg2bins(16384, 16384*3)
	assert.Contains(t, bins, uint32(4682))
	assert.Contains(t, bins, uint32(4683))
	assert.NotContains(t, bins, uint32(4681))
}
