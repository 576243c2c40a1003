package vcf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FilterMeta describes one ##FILTER header definition.
type FilterMeta struct {
	ID          string
	Description string
}

// HeaderLine serializes the metadata as a ##FILTER header line.
func (m FilterMeta) HeaderLine() string {
	return fmt.Sprintf("##FILTER=<ID=%s,Description=\"%s\">", m.ID, m.Description)
}

// Writer serializes variants back to VCF.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter returns a Writer emitting VCF text to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteHeader writes the original header lines, inserting the given extra
// INFO and FILTER definitions before the #CHROM line.
func (w *Writer) WriteHeader(header []string, extraInfo []InfoMeta, extraFilter []FilterMeta) error {
	for _, line := range header {
		if strings.HasPrefix(line, "#CHROM") {
			for _, meta := range extraInfo {
				if _, err := fmt.Fprintln(w.bw, meta.HeaderLine()); err != nil {
					return fmt.Errorf("write header: %w", err)
				}
			}
			for _, meta := range extraFilter {
				if _, err := fmt.Fprintln(w.bw, meta.HeaderLine()); err != nil {
					return fmt.Errorf("write header: %w", err)
				}
			}
		}
		if _, err := fmt.Fprintln(w.bw, line); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	return nil
}

// WriteVariant writes one record with its current ID, FILTER and INFO state.
func (w *Writer) WriteVariant(v *Variant) error {
	qual := v.qual
	if qual == "" {
		qual = "."
	}
	filter := v.Filter
	if filter == "" {
		filter = "."
	}
	cols := []string{
		v.Chrom,
		strconv.FormatInt(v.Pos, 10),
		v.ID,
		v.Ref,
		v.Alt,
		qual,
		filter,
		v.InfoString(),
	}
	if v.SampleColumns != "" {
		cols = append(cols, v.SampleColumns)
	}
	if _, err := fmt.Fprintln(w.bw, strings.Join(cols, "\t")); err != nil {
		return fmt.Errorf("write variant: %w", err)
	}
	return nil
}

// Flush flushes buffered output.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
