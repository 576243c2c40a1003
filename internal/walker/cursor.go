package walker

import (
	"io"
	"strings"

	"github.com/biogo/hts/bgzf"

	"github.com/vasekit/vase/internal/tabix"
)

// Cursor reads newline-terminated rows from a BGZF stream while tracking the
// virtual offset of the last byte consumed, so callers can bound sequential
// reads by index chunk offsets.
type Cursor struct {
	r       *bgzf.Reader
	pos     int64
	scratch [1]byte
}

// NewCursor wraps r. The cursor position is the stream's current offset.
func NewCursor(r *bgzf.Reader) *Cursor {
	return &Cursor{r: r, pos: tabix.VOffset(r.LastChunk().End)}
}

// Tell returns the virtual offset immediately after the last byte read.
func (c *Cursor) Tell() int64 { return c.pos }

// Seek repositions the stream at the given virtual offset.
func (c *Cursor) Seek(off bgzf.Offset) error {
	if err := c.r.Seek(off); err != nil {
		return err
	}
	c.pos = tabix.VOffset(off)
	return nil
}

// ReadLine returns the next row without its line terminator. At end of
// stream it returns io.EOF; a final unterminated row is returned first.
func (c *Cursor) ReadLine() (string, error) {
	var sb strings.Builder
	for {
		n, err := c.r.Read(c.scratch[:])
		if n > 0 {
			c.pos = tabix.VOffset(c.r.LastChunk().End)
			ch := c.scratch[0]
			if ch == '\n' {
				return strings.TrimSuffix(sb.String(), "\r"), nil
			}
			sb.WriteByte(ch)
		}
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return strings.TrimSuffix(sb.String(), "\r"), nil
			}
			return "", err
		}
	}
}
