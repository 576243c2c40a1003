package tabix

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/hts/bgzf"
)

// BuildOpts selects the columns used to index a tab-delimited file.
// Columns are 1-based. The indexed interval for a row is derived from the
// position column and the length of the reference allele column.
type BuildOpts struct {
	SeqCol int  // contig name column
	BegCol int  // 1-based position column
	RefCol int  // reference allele column
	Meta   byte // comment/header line marker
}

// VCFColumns indexes VCF-layout rows (CHROM, POS, ID, REF, ...).
var VCFColumns = BuildOpts{SeqCol: 1, BegCol: 2, RefCol: 4, Meta: '#'}

// Build creates a tabix index for the BGZF-compressed, coordinate-sorted file
// at path and writes it alongside as path+".tbi", returning the index path.
// Rows out of coordinate order are an error.
func Build(path string, opts BuildOpts) (string, error) {
	if opts.SeqCol == 0 {
		opts = VCFColumns
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("tabix build: %w", err)
	}
	defer f.Close()
	bg, err := bgzf.NewReader(f, 0)
	if err != nil {
		return "", fmt.Errorf("tabix build %s: %w", path, err)
	}
	defer bg.Close()

	minCols := opts.SeqCol
	if opts.BegCol > minCols {
		minCols = opts.BegCol
	}
	if opts.RefCol > minCols {
		minCols = opts.RefCol
	}

	var (
		names []string
		refs  = make(map[string]*refBuilder)
		cur   *refBuilder
		lr    = lineReader{r: bg}
		line  int
	)
	for {
		lineStart := VOffset(bg.LastChunk().End)
		row, err := lr.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("tabix build %s: %w", path, err)
		}
		lineEnd := VOffset(bg.LastChunk().End)
		line++
		if row == "" || row[0] == opts.Meta {
			continue
		}
		fields := strings.Split(row, "\t")
		if len(fields) < minCols {
			return "", fmt.Errorf("tabix build %s: line %d: %d columns, need %d", path, line, len(fields), minCols)
		}
		contig := fields[opts.SeqCol-1]
		pos, err := strconv.ParseInt(fields[opts.BegCol-1], 10, 64)
		if err != nil {
			return "", fmt.Errorf("tabix build %s: line %d: bad position %q", path, line, fields[opts.BegCol-1])
		}
		beg := pos - 1
		end := beg + int64(len(fields[opts.RefCol-1]))
		if end <= beg {
			end = beg + 1
		}

		if cur == nil || cur.name != contig {
			if _, seen := refs[contig]; seen {
				return "", fmt.Errorf("tabix build %s: line %d: contig %s out of order", path, line, contig)
			}
			cur = &refBuilder{name: contig, bins: make(map[uint32][]Chunk)}
			refs[contig] = cur
			names = append(names, contig)
		} else if beg < cur.lastBeg {
			return "", fmt.Errorf("tabix build %s: line %d: position %d out of order on %s", path, line, pos, contig)
		}
		cur.lastBeg = beg
		cur.add(beg, end, lineStart, lineEnd)
	}

	idxPath := path + Suffix
	if err := writeIndex(idxPath, opts, names, refs); err != nil {
		return "", err
	}
	return idxPath, nil
}

type refBuilder struct {
	name    string
	lastBeg int64
	bins    map[uint32][]Chunk
	linear  []int64 // -1 means unset
}

func (b *refBuilder) add(beg, end, voStart, voEnd int64) {
	bin := reg2bin(beg, end)
	chunks := b.bins[bin]
	if n := len(chunks); n > 0 && VOffset(chunks[n-1].End) == voStart {
		chunks[n-1].End = makeOffset(uint64(voEnd))
	} else {
		chunks = append(chunks, Chunk{Begin: makeOffset(uint64(voStart)), End: makeOffset(uint64(voEnd))})
	}
	b.bins[bin] = chunks

	for w := beg >> linearShift; w <= (end-1)>>linearShift; w++ {
		for int64(len(b.linear)) <= w {
			b.linear = append(b.linear, -1)
		}
		if b.linear[w] == -1 {
			b.linear[w] = voStart
		}
	}
}

// intervals returns the linear index with unset windows carrying the previous
// window's offset, zero before the first record.
func (b *refBuilder) intervals() []int64 {
	out := make([]int64, len(b.linear))
	var last int64
	for i, v := range b.linear {
		if v == -1 {
			v = last
		}
		out[i] = v
		last = v
	}
	return out
}

func writeIndex(path string, opts BuildOpts, names []string, refs map[string]*refBuilder) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tabix build: %w", err)
	}
	bw := bgzf.NewWriter(f, 1)

	le := binary.LittleEndian
	w := func(v any) {
		if err == nil {
			err = binary.Write(bw, le, v)
		}
	}

	w(magic[:])
	w(int32(len(names)))
	w(int32(2)) // format: interval end derived from allele length
	w(int32(opts.SeqCol))
	w(int32(opts.BegCol))
	w(int32(0))
	w(int32(opts.Meta))
	w(int32(0))
	var nm []byte
	for _, n := range names {
		nm = append(nm, n...)
		nm = append(nm, 0)
	}
	w(int32(len(nm)))
	w(nm)

	for _, name := range names {
		ref := refs[name]
		w(int32(len(ref.bins)))
		for bin, chunks := range ref.bins {
			w(bin)
			w(int32(len(chunks)))
			for _, ck := range chunks {
				w(asUint64(ck.Begin))
				w(asUint64(ck.End))
			}
		}
		iv := ref.intervals()
		w(int32(len(iv)))
		for _, v := range iv {
			w(uint64(v))
		}
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("tabix build %s: %w", path, err)
	}
	if err := bw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("tabix build %s: %w", path, err)
	}
	return f.Close()
}

type lineReader struct {
	r       *bgzf.Reader
	scratch [1]byte
}

func (lr *lineReader) readLine() (string, error) {
	var sb strings.Builder
	for {
		n, err := lr.r.Read(lr.scratch[:])
		if n > 0 {
			c := lr.scratch[0]
			if c == '\n' {
				return strings.TrimSuffix(sb.String(), "\r"), nil
			}
			sb.WriteByte(c)
		}
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return strings.TrimSuffix(sb.String(), "\r"), nil
			}
			return "", err
		}
	}
}
