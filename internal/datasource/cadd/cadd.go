// Package cadd filters and annotates variants using CADD deleteriousness
// scores from tabix-indexed reference score files or a DuckDB score store.
package cadd

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/vasekit/vase/internal/refsrc"
	"github.com/vasekit/vase/internal/tabix"
	"github.com/vasekit/vase/internal/vcf"
	"github.com/vasekit/vase/internal/walker"
)

// INFO fields added to annotated records.
const (
	InfoRaw   = "CADD_raw_score"
	InfoPhred = "CADD_PHRED_score"
)

const minColumns = 6

// Columns selects the indexed columns of a CADD scores file
// (#Chrom, Pos, Ref, Alt, RawScore, PHRED).
var Columns = tabix.BuildOpts{SeqCol: 1, BegCol: 2, RefCol: 3, Meta: '#'}

// ParseRow normalizes one CADD scores row. The ref/alt pair is reduced to its
// simplest representation and the interval derived from the reduced ref.
func ParseRow(line string) (walker.Record, error) {
	fields, err := walker.SplitRow(line, minColumns)
	if err != nil {
		return walker.Record{}, err
	}
	pos, err := walker.ParsePos(line, fields, 1)
	if err != nil {
		return walker.Record{}, err
	}
	pos, ref, alt := walker.Reduce(pos, fields[2], fields[3])
	return walker.Record{
		Pos:     pos,
		Stop:    pos + int64(len(ref)) - 1,
		Alleles: []walker.Allele{{Pos: pos, Ref: ref, Alt: alt}},
		Fields:  fields,
	}, nil
}

// Config configures a Filter. Either Files/Dir (tabix retrieval) or DB
// (DuckDB store) must be given. Nil thresholds disable that check.
type Config struct {
	Files []string
	Dir   string
	DB    string // DuckDB score database path; overrides Files/Dir

	MinPhred *float64
	MinRaw   *float64

	// ToScore names a gzip output file collecting unmatched alleles in a
	// four-column format suitable for external scoring submission.
	ToScore string

	// NoWalk answers each query with an independent index lookup instead
	// of the sequential walking cursor.
	NoWalk bool

	// BuildMissingIndex builds a tabix index on demand for score files
	// that lack one.
	BuildMissingIndex bool

	Logger *zap.Logger
}

// Filter annotates records with CADD raw and PHRED scores and flags alleles
// scoring below the configured thresholds.
type Filter struct {
	set      *refsrc.Set
	store    *Store
	minPhred *float64
	minRaw   *float64
	logger   *zap.Logger

	toScoreFile *os.File
	toScore     *gzip.Writer
}

// New opens the configured score sources. The returned filter must be closed.
func New(cfg Config) (*Filter, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Filter{
		minPhred: cfg.MinPhred,
		minRaw:   cfg.MinRaw,
		logger:   logger,
	}

	if cfg.DB != "" {
		store, err := OpenStore(cfg.DB)
		if err != nil {
			return nil, err
		}
		f.store = store
	} else {
		set, err := refsrc.OpenSet(cfg.Files, cfg.Dir, refsrc.Options{
			Parse:             ParseRow,
			NoWalk:            cfg.NoWalk,
			BuildMissingIndex: cfg.BuildMissingIndex,
			BuildColumns:      Columns,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		f.set = set
	}

	if cfg.ToScore != "" {
		name := cfg.ToScore
		if !strings.HasSuffix(name, ".gz") {
			name += ".gz"
		}
		out, err := os.Create(name)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create scoring output: %w", err)
		}
		f.toScoreFile = out
		f.toScore = gzip.NewWriter(out)
		// The scoring output must not be lost if the caller forgets Close.
		runtime.SetFinalizer(f, (*Filter).closeScoring)
	}
	return f, nil
}

// InfoFields returns the header definitions for the INFO fields this filter
// adds.
func (f *Filter) InfoFields() []vcf.InfoMeta {
	return []vcf.InfoMeta{
		{ID: InfoPhred, Number: "A", Type: "Float",
			Description: "CADD PHRED score added from reference files by vase"},
		{ID: InfoRaw, Number: "A", Type: "Float",
			Description: "CADD RawScore added from reference files by vase"},
	}
}

type scorePair struct {
	raw   float64
	phred float64
}

// AnnotateOrFilter annotates the record with CADD raw and PHRED scores and
// returns one flag per decomposed allele indicating whether the allele scores
// below a threshold. Unmatched alleles are written to the scoring output when
// one is configured.
func (f *Filter) AnnotateOrFilter(v *vcf.Variant) ([]bool, error) {
	scores, err := f.scoreVariant(v)
	if err != nil {
		return nil, err
	}
	n := len(scores)
	filters := make([]bool, n)
	rawVals := make([]string, n)
	phredVals := make([]string, n)
	for i, s := range scores {
		if s == nil {
			if f.toScore != nil {
				if err := f.writeForScoring(v, i); err != nil {
					return nil, err
				}
			}
			continue
		}
		rawVals[i] = formatScore(s.raw)
		phredVals[i] = formatScore(s.phred)
		if f.minRaw != nil && s.raw < *f.minRaw {
			filters[i] = true
		}
		if f.minPhred != nil && s.phred < *f.minPhred {
			filters[i] = true
		}
	}
	v.AddInfoField(InfoRaw, vcf.PerAllele(rawVals))
	v.AddInfoField(InfoPhred, vcf.PerAllele(phredVals))
	return filters, nil
}

// scoreVariant returns the raw/PHRED score pair for each decomposed allele,
// taken from the first matching record encountered across score sources.
func (f *Filter) scoreVariant(v *vcf.Variant) ([]*scorePair, error) {
	alleles := v.DecomposedAlleles()
	out := make([]*scorePair, len(alleles))

	if f.store != nil {
		for i, al := range alleles {
			if res, ok := f.store.Lookup(v.Chrom, al.Pos, al.Ref, al.Alt); ok {
				out[i] = &scorePair{raw: res.Raw, phred: res.Phred}
			}
		}
		return out, nil
	}

	hits, err := f.set.Search(v.Chrom, v.Start(), v.Stop())
	if err != nil {
		return nil, err
	}
	for i, al := range alleles {
		for _, h := range hits {
			ha := h.Alleles[0]
			if al.Pos != ha.Pos || al.Ref != ha.Ref || al.Alt != ha.Alt {
				continue
			}
			raw, rerr := strconv.ParseFloat(h.Fields[4], 64)
			phred, perr := strconv.ParseFloat(h.Fields[5], 64)
			if rerr != nil || perr != nil {
				f.logger.Warn("unparseable CADD scores",
					zap.String("raw", h.Fields[4]),
					zap.String("phred", h.Fields[5]))
				continue
			}
			out[i] = &scorePair{raw: raw, phred: phred}
			break // first matching record wins
		}
	}
	return out, nil
}

func (f *Filter) writeForScoring(v *vcf.Variant, i int) error {
	al := v.DecomposedAlleles()[i]
	if al.Alt == "*" {
		return nil
	}
	_, err := fmt.Fprintf(f.toScore, "%s\t%d\t.\t%s\t%s\n", v.Chrom, al.Pos, al.Ref, al.Alt)
	if err != nil {
		return fmt.Errorf("write scoring output: %w", err)
	}
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (f *Filter) closeScoring() error {
	var err error
	if f.toScore != nil {
		err = f.toScore.Close()
		f.toScore = nil
	}
	if f.toScoreFile != nil {
		if cerr := f.toScoreFile.Close(); err == nil {
			err = cerr
		}
		f.toScoreFile = nil
	}
	return err
}

// Close releases the score sources and the scoring output file.
func (f *Filter) Close() error {
	runtime.SetFinalizer(f, nil)
	err := f.closeScoring()
	if f.set != nil {
		if cerr := f.set.Close(); err == nil {
			err = cerr
		}
	}
	if f.store != nil {
		if cerr := f.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
