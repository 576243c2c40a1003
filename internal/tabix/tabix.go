// Package tabix reads and writes tabix (.tbi) coordinate indexes for
// BGZF-compressed, coordinate-sorted, tab-delimited reference files.
package tabix

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bgzf"
)

// Suffix is appended to a reference file path to locate its index.
const Suffix = ".tbi"

var magic = [4]byte{'T', 'B', 'I', 1}

// Chunk is a span of the compressed file holding records for one bin.
type Chunk struct {
	Begin, End bgzf.Offset
}

// RefIndex holds the index data for a single reference contig: a binning
// table mapping bin numbers to chunks, and a linear index giving the minimum
// virtual offset per 16384-base window.
type RefIndex struct {
	Bins      map[uint32][]Chunk
	Intervals []bgzf.Offset
}

// Index is a parsed tabix index for one reference file.
type Index struct {
	Format int32
	SeqCol int32
	BegCol int32
	EndCol int32
	Meta   byte
	Skip   int32

	names []string
	refs  map[string]*RefIndex
}

// FormatError reports an absent, truncated or otherwise unusable index file.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("tabix: unusable index %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Load reads the tabix index at path.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer f.Close()

	bg, err := bgzf.NewReader(f, 0)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer bg.Close()

	raw, err := io.ReadAll(bg)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	idx, err := parse(raw)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	return idx, nil
}

type byteCursor struct {
	buf []byte
	off int
}

func (c *byteCursor) bytes(n int) ([]byte, error) {
	if c.off+n > len(c.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *byteCursor) int32() (int32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (c *byteCursor) uint32() (uint32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *byteCursor) uint64() (uint64, error) {
	b, err := c.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func parse(raw []byte) (*Index, error) {
	c := &byteCursor{buf: raw}

	m, err := c.bytes(4)
	if err != nil {
		return nil, err
	}
	if [4]byte(m) != magic {
		return nil, fmt.Errorf("bad magic %q", m)
	}

	var hdr [8]int32
	for i := range hdr {
		if hdr[i], err = c.int32(); err != nil {
			return nil, err
		}
	}
	nRef := hdr[0]
	if nRef < 0 {
		return nil, fmt.Errorf("negative reference count %d", nRef)
	}

	idx := &Index{
		Format: hdr[1],
		SeqCol: hdr[2],
		BegCol: hdr[3],
		EndCol: hdr[4],
		Meta:   byte(hdr[5]),
		Skip:   hdr[6],
		refs:   make(map[string]*RefIndex, nRef),
	}

	nameBytes, err := c.bytes(int(hdr[7]))
	if err != nil {
		return nil, err
	}
	names := strings.Split(strings.TrimRight(string(nameBytes), "\x00"), "\x00")
	if len(nameBytes) == 0 {
		names = nil
	}
	if int32(len(names)) != nRef {
		return nil, fmt.Errorf("index names %d references, header declares %d", len(names), nRef)
	}
	idx.names = names

	for _, name := range names {
		ref := &RefIndex{Bins: make(map[uint32][]Chunk)}
		nBin, err := c.int32()
		if err != nil {
			return nil, err
		}
		for j := int32(0); j < nBin; j++ {
			bin, err := c.uint32()
			if err != nil {
				return nil, err
			}
			nChunk, err := c.int32()
			if err != nil {
				return nil, err
			}
			chunks := make([]Chunk, nChunk)
			for k := range chunks {
				beg, err := c.uint64()
				if err != nil {
					return nil, err
				}
				end, err := c.uint64()
				if err != nil {
					return nil, err
				}
				chunks[k] = Chunk{Begin: makeOffset(beg), End: makeOffset(end)}
			}
			ref.Bins[bin] = chunks
		}
		nIntv, err := c.int32()
		if err != nil {
			return nil, err
		}
		ref.Intervals = make([]bgzf.Offset, nIntv)
		for j := range ref.Intervals {
			v, err := c.uint64()
			if err != nil {
				return nil, err
			}
			ref.Intervals[j] = makeOffset(v)
		}
		idx.refs[name] = ref
	}
	return idx, nil
}

func makeOffset(v uint64) bgzf.Offset {
	return bgzf.Offset{File: int64(v >> 16), Block: uint16(v & 0xffff)}
}

func asUint64(o bgzf.Offset) uint64 {
	return uint64(o.File)<<16 | uint64(o.Block)
}

// VOffset returns the comparable form of a BGZF virtual offset.
func VOffset(o bgzf.Offset) int64 {
	return o.File<<16 | int64(o.Block)
}

// Names returns the reference contig names in index order.
func (i *Index) Names() []string {
	return i.names
}

// Has reports whether the index covers the named contig.
func (i *Index) Has(contig string) bool {
	_, ok := i.refs[contig]
	return ok
}

// Ref returns the per-contig index, or nil if the contig is absent.
func (i *Index) Ref(contig string) *RefIndex {
	return i.refs[contig]
}

// ChunkSpan returns the candidate byte range for records overlapping the
// zero-based half-open interval [beg,end) on contig. Chunks from bins
// overlapping the interval are unioned; chunks ending at or before the
// linear-index minimum offset for beg's window are discarded and chunk
// begins are raised to that minimum. ok is false when the contig is absent
// from the index or no chunk remains.
func (i *Index) ChunkSpan(contig string, beg, end int64) (Chunk, bool) {
	ref := i.refs[contig]
	if ref == nil {
		return Chunk{}, false
	}
	var minOff int64
	if n := len(ref.Intervals); n > 0 {
		w := int(beg >> linearShift)
		if w >= n {
			w = n - 1
		}
		minOff = VOffset(ref.Intervals[w])
	}
	var (
		span  Chunk
		found bool
	)
	for _, bin := range reg2bins(beg, end) {
		for _, ck := range ref.Bins[bin] {
			if VOffset(ck.End) <= minOff {
				continue
			}
			if VOffset(ck.Begin) < minOff {
				ck.Begin = makeOffset(uint64(minOff))
			}
			if !found {
				span = ck
				found = true
				continue
			}
			if VOffset(ck.Begin) < VOffset(span.Begin) {
				span.Begin = ck.Begin
			}
			if VOffset(ck.End) > VOffset(span.End) {
				span.End = ck.End
			}
		}
	}
	return span, found
}
