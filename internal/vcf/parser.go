package vcf

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// InfoMeta describes one ##INFO header definition.
type InfoMeta struct {
	ID          string
	Number      string
	Type        string
	Description string
}

// HeaderLine serializes the metadata as a ##INFO header line.
func (m InfoMeta) HeaderLine() string {
	return fmt.Sprintf("##INFO=<ID=%s,Number=%s,Type=%s,Description=\"%s\">",
		m.ID, m.Number, m.Type, m.Description)
}

// Parser reads variants from a VCF file.
type Parser struct {
	reader      *bufio.Reader
	file        *os.File
	gzipReader  *gzip.Reader
	lineNumber  int
	header      []string
	infoMeta    map[string]InfoMeta
	sampleNames []string // sample names from #CHROM header line
}

// NewParser creates a new VCF parser for the given file.
// Supports both plain VCF and gzipped VCF (.vcf.gz) files.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	p := &Parser{file: file}

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	_, err = file.Read(buf)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read vcf header: %w", err)
	}

	// Seek back to beginning
	_, err = file.Seek(0, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("seek vcf file: %w", err)
	}

	// Check for gzip magic number (0x1f, 0x8b)
	if buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	// Parse header
	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g., stdin).
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(r),
	}

	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	return p, nil
}

// parseHeader reads and stores VCF header lines, collecting ##INFO metadata.
func (p *Parser) parseHeader() error {
	p.infoMeta = make(map[string]InfoMeta)
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read header: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, "##") {
			p.header = append(p.header, line)
			if meta, ok := parseInfoMeta(line); ok {
				p.infoMeta[meta.ID] = meta
			}
			continue
		}

		if strings.HasPrefix(line, "#CHROM") {
			p.header = append(p.header, line)
			// Extract sample names from columns after FORMAT (index 9+)
			fields := strings.Split(line, "\t")
			if len(fields) > 9 {
				p.sampleNames = fields[9:]
			}
			return nil
		}

		// Non-header line encountered without #CHROM
		return &ParseError{
			Line:    p.lineNumber,
			Message: "expected #CHROM header line",
		}
	}

	return &ParseError{
		Line:    p.lineNumber,
		Message: "no #CHROM header line found",
	}
}

// parseInfoMeta parses a ##INFO=<ID=...,Number=...,Type=...,Description="...">
// header line.
func parseInfoMeta(line string) (InfoMeta, bool) {
	if !strings.HasPrefix(line, "##INFO=<") || !strings.HasSuffix(line, ">") {
		return InfoMeta{}, false
	}
	body := line[len("##INFO=<") : len(line)-1]
	var meta InfoMeta
	for len(body) > 0 {
		eq := strings.IndexByte(body, '=')
		if eq < 0 {
			break
		}
		key := body[:eq]
		body = body[eq+1:]
		var val string
		if strings.HasPrefix(body, "\"") {
			end := strings.IndexByte(body[1:], '"')
			if end < 0 {
				return InfoMeta{}, false
			}
			val = body[1 : 1+end]
			body = strings.TrimPrefix(body[2+end:], ",")
		} else {
			end := strings.IndexByte(body, ',')
			if end < 0 {
				val, body = body, ""
			} else {
				val, body = body[:end], body[end+1:]
			}
		}
		switch key {
		case "ID":
			meta.ID = val
		case "Number":
			meta.Number = val
		case "Type":
			meta.Type = val
		case "Description":
			meta.Description = val
		}
	}
	if meta.ID == "" {
		return InfoMeta{}, false
	}
	return meta, true
}

// Next reads the next variant from the VCF file.
// Returns nil, nil when there are no more variants.
func (p *Parser) Next() (*Variant, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read variant line: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err == io.EOF {
			return nil, nil
		}
		p.lineNumber++
		return p.Next() // Skip empty lines
	}
	p.lineNumber++

	return p.parseLine(line)
}

// parseLine parses a single VCF data line into a Variant.
func (p *Parser) parseLine(line string) (*Variant, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected at least 8 columns, found %d", len(fields)),
		}
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid position: %s", fields[1]),
		}
	}

	v := &Variant{
		Chrom:  fields[0],
		Pos:    pos,
		ID:     fields[2],
		Ref:    fields[3],
		Alt:    fields[4],
		qual:   fields[5],
		Filter: fields[6],
	}
	parseInfoColumn(v, fields[7])

	// Capture FORMAT + sample columns if present
	if len(fields) > 8 {
		v.SampleColumns = strings.Join(fields[8:], "\t")
	}

	return v, nil
}

// parseInfoColumn fills the variant's INFO map, preserving field order.
func parseInfoColumn(v *Variant, info string) {
	if info == "." || info == "" {
		return
	}
	for _, kv := range strings.Split(info, ";") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			v.AddInfoField(parts[0], parts[1])
		} else {
			// Flag-type INFO field
			v.AddInfoField(parts[0], "")
		}
	}
}

// Header returns the VCF header lines.
func (p *Parser) Header() []string {
	return p.header
}

// InfoMetaFor returns the header metadata for an INFO field, if declared.
func (p *Parser) InfoMetaFor(id string) (InfoMeta, bool) {
	meta, ok := p.infoMeta[id]
	return meta, ok
}

// SampleNames returns sample names from the #CHROM header line.
// Returns nil if no sample columns are present.
func (p *Parser) SampleNames() []string {
	return p.sampleNames
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during VCF parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}
