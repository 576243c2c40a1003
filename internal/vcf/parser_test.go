package vcf

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVCF = `##fileformat=VCFv4.2
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total Depth">
##INFO=<ID=CAF,Number=.,Type=String,Description="Allele frequencies, comma delimited">
##INFO=<ID=DB,Number=0,Type=Flag,Description="dbSNP membership">
##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	SAMPLE1
12	25245350	.	C	A	50	PASS	DP=100;DB	GT	0/1
1	100	rs1	ATG	ATC,A	.	.	DP=7	GT	0/1
`

func writeTestVCF(t *testing.T, gzipped bool) string {
	t.Helper()
	name := "test.vcf"
	if gzipped {
		name += ".gz"
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	if gzipped {
		gw := gzip.NewWriter(f)
		_, err = gw.Write([]byte(testVCF))
		require.NoError(t, err)
		require.NoError(t, gw.Close())
	} else {
		_, err = f.WriteString(testVCF)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	return path
}

func TestParserPlain(t *testing.T) {
	p, err := NewParser(writeTestVCF(t, false))
	require.NoError(t, err)
	defer p.Close()

	assert.Len(t, p.Header(), 6)
	assert.Equal(t, []string{"SAMPLE1"}, p.SampleNames())

	v, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "12", v.Chrom)
	assert.Equal(t, int64(25245350), v.Pos)
	assert.Equal(t, "C", v.Ref)
	assert.Equal(t, "A", v.Alt)
	assert.Equal(t, "PASS", v.Filter)
	assert.Equal(t, "GT\t0/1", v.SampleColumns)

	dp, ok := v.Info("DP")
	assert.True(t, ok)
	assert.Equal(t, "100", dp)
	db, ok := v.Info("DB")
	assert.True(t, ok)
	assert.Equal(t, "", db, "flag fields carry an empty value")
	assert.False(t, v.HasInfo("CAF"))

	v, err = p.Next()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "rs1", v.ID)

	v, err = p.Next()
	require.NoError(t, err)
	assert.Nil(t, v, "end of file yields nil variant")
}

func TestParserGzipped(t *testing.T) {
	p, err := NewParser(writeTestVCF(t, true))
	require.NoError(t, err)
	defer p.Close()

	v, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "12", v.Chrom)
}

func TestParserInfoMeta(t *testing.T) {
	p, err := NewParser(writeTestVCF(t, false))
	require.NoError(t, err)
	defer p.Close()

	meta, ok := p.InfoMetaFor("CAF")
	require.True(t, ok)
	assert.Equal(t, "CAF", meta.ID)
	assert.Equal(t, ".", meta.Number)
	assert.Equal(t, "String", meta.Type)
	assert.Equal(t, "Allele frequencies, comma delimited", meta.Description)

	_, ok = p.InfoMetaFor("GT")
	assert.False(t, ok, "FORMAT definitions are not INFO metadata")
}

func TestParseInfoMetaLine(t *testing.T) {
	meta, ok := parseInfoMeta(`##INFO=<ID=CLNSIG,Number=.,Type=String,Description="Clinical significance, 5 - pathogenic">`)
	require.True(t, ok)
	assert.Equal(t, "CLNSIG", meta.ID)
	assert.Equal(t, "Clinical significance, 5 - pathogenic", meta.Description)

	_, ok = parseInfoMeta(`##FILTER=<ID=q10,Description="low qual">`)
	assert.False(t, ok)
}

func TestParserMissingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.vcf")
	require.NoError(t, os.WriteFile(path, []byte("12\t100\t.\tC\tA\t.\t.\t.\n"), 0644))
	_, err := NewParser(path)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestParserBadRecord(t *testing.T) {
	p, err := NewParserFromReader(strings.NewReader("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n12\txyz\t.\tC\tA\t.\t.\t.\n"))
	require.NoError(t, err)
	_, err = p.Next()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "invalid position")
}

func TestParserFinalLineWithoutNewline(t *testing.T) {
	p, err := NewParserFromReader(strings.NewReader("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n12\t100\t.\tC\tA\t.\t.\tDP=5"))
	require.NoError(t, err)
	v, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(100), v.Pos)
	v, err = p.Next()
	require.NoError(t, err)
	assert.Nil(t, v)
}
