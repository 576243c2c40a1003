// Package dbsnp filters and annotates variants against a tabix-indexed dbSNP
// VCF, using allele frequency, dbSNP build and ClinVar significance data.
package dbsnp

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vasekit/vase/internal/refsrc"
	"github.com/vasekit/vase/internal/tabix"
	"github.com/vasekit/vase/internal/vcf"
	"github.com/vasekit/vase/internal/walker"
)

// DefaultPrefix is prepended to INFO annotations added by this filter.
const DefaultPrefix = "VASE_dbSNP"

// clinvarPathTerms are the CLNSIG values treated as (likely) pathogenic.
// Numeric codes are the pre-2017 ClinVar encoding.
var clinvarPathTerms = []string{"Likely_pathogenic", "Pathogenic", "4", "5"}

// Known dbSNP INFO fields, grouped by role. Presence is detected from the
// reference file's header at construction.
var (
	freqFieldNames    = []string{"CAF", "G5A", "G5", "COMMON", "TOPMED"}
	buildFieldNames   = []string{"dbSNPBuildID"}
	clinvarFieldNames = []string{"CLNSIG", "CLNALLE", "CLNDBN", "CLNDSDBID", "CLNHGVS", "GENEINFO"}
)

const minColumns = 8

// ParseRow normalizes one dbSNP VCF row, decomposing multi-allelic rows into
// one reduced allele per ALT.
func ParseRow(line string) (walker.Record, error) {
	fields, err := walker.SplitRow(line, minColumns)
	if err != nil {
		return walker.Record{}, err
	}
	pos, err := walker.ParsePos(line, fields, 1)
	if err != nil {
		return walker.Record{}, err
	}
	ref := fields[3]
	alts := strings.Split(fields[4], ",")
	alleles := make([]walker.Allele, len(alts))
	for i, alt := range alts {
		p, r, a := walker.Reduce(pos, ref, alt)
		alleles[i] = walker.Allele{Pos: p, Ref: r, Alt: a}
	}
	return walker.Record{
		Pos:     pos,
		Stop:    pos + int64(len(ref)) - 1,
		Alleles: alleles,
		Fields:  fields,
	}, nil
}

// Config configures a Filter. Nil thresholds disable that check.
type Config struct {
	// File is the tabix-indexed dbSNP VCF.
	File string

	// Prefix for added INFO fields; DefaultPrefix when empty.
	Prefix string

	Freq     *float64 // filter when allele frequency >= Freq
	MinFreq  *float64 // filter when allele frequency < MinFreq
	Build    *int     // filter when dbSNP build < Build
	MaxBuild *int     // filter when dbSNP build > MaxBuild

	// ClinVarPath keeps alleles whose matched record is annotated
	// pathogenic or likely pathogenic, overriding frequency/build filters.
	ClinVarPath bool

	NoWalk            bool
	BuildMissingIndex bool

	Logger *zap.Logger
}

// Filter annotates and filters variant alleles against one dbSNP file.
type Filter struct {
	file   *refsrc.File
	prefix string
	logger *zap.Logger

	freq, minFreq   *float64
	build, maxBuild *int
	clinvarPath     bool

	freqFields    map[string]vcf.InfoMeta
	buildFields   map[string]vcf.InfoMeta
	clinvarFields map[string]vcf.InfoMeta
}

// New opens the dbSNP reference file, detects which known INFO fields its
// header declares, and validates them against the requested filters.
func New(cfg Config) (*Filter, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Build != nil && cfg.MaxBuild != nil && *cfg.Build > *cfg.MaxBuild {
		return nil, &refsrc.ConfigError{Path: cfg.File,
			Reason: "build argument must not be greater than max-build argument"}
	}

	f := &Filter{
		prefix:        prefix,
		logger:        logger,
		freq:          cfg.Freq,
		minFreq:       cfg.MinFreq,
		build:         cfg.Build,
		maxBuild:      cfg.MaxBuild,
		clinvarPath:   cfg.ClinVarPath,
		freqFields:    make(map[string]vcf.InfoMeta),
		buildFields:   make(map[string]vcf.InfoMeta),
		clinvarFields: make(map[string]vcf.InfoMeta),
	}
	if err := f.readAnnotFields(cfg.File); err != nil {
		return nil, err
	}

	rf, err := refsrc.Open(cfg.File, refsrc.Options{
		Parse:             ParseRow,
		NoWalk:            cfg.NoWalk,
		BuildMissingIndex: cfg.BuildMissingIndex,
		BuildColumns:      tabix.VCFColumns,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	f.file = rf
	return f, nil
}

// readAnnotFields scans the reference VCF header for the known frequency,
// build and ClinVar INFO fields and checks the requested filters can be
// satisfied.
func (f *Filter) readAnnotFields(path string) error {
	p, err := vcf.NewParser(path)
	if err != nil {
		return err
	}
	defer p.Close()

	for _, name := range freqFieldNames {
		if meta, ok := p.InfoMetaFor(name); ok {
			f.freqFields[name] = meta
		}
	}
	for _, name := range buildFieldNames {
		if meta, ok := p.InfoMetaFor(name); ok {
			f.buildFields[name] = meta
		}
	}
	for _, name := range clinvarFieldNames {
		if meta, ok := p.InfoMetaFor(name); ok {
			f.clinvarFields[name] = meta
		}
	}
	// Missing ClinVar fields are tolerated: clinical filtering may be done
	// against a separate ClinVar reference file.
	if len(f.freqFields) == 0 && !f.clinvarPath && (f.freq != nil || f.minFreq != nil) {
		return &refsrc.ConfigError{Path: path,
			Reason: "no frequency fields in header; cannot filter on freq/min-freq"}
	}
	if len(f.buildFields) == 0 && !f.clinvarPath && (f.build != nil || f.maxBuild != nil) {
		return &refsrc.ConfigError{Path: path,
			Reason: "no dbSNPBuildID field in header; cannot filter on build/max-build"}
	}
	return nil
}

// InfoFields returns the header definitions for all INFO fields this filter
// may add.
func (f *Filter) InfoFields() []vcf.InfoMeta {
	var out []vcf.InfoMeta
	add := func(names []string, fields map[string]vcf.InfoMeta) {
		for _, name := range names {
			meta, ok := fields[name]
			if !ok {
				continue
			}
			typ := meta.Type
			if name == "CAF" || name == "TOPMED" {
				typ = "Float"
			}
			out = append(out, vcf.InfoMeta{
				ID:          f.prefix + "_" + name,
				Number:      "A",
				Type:        typ,
				Description: meta.Description,
			})
		}
	}
	add(freqFieldNames, f.freqFields)
	add(buildFieldNames, f.buildFields)
	add(clinvarFieldNames, f.clinvarFields)
	out = append(out, vcf.InfoMeta{
		ID: f.prefix + "_RSID", Number: "A", Type: "String", Description: "dbSNP ID",
	})
	return out
}

// AnnotateAndFilter compares each decomposed allele of the record against
// overlapping dbSNP records, merges matched annotations into the record's
// INFO fields and ID column, and returns per-allele filter, keep-override
// and matched flags.
func (f *Filter) AnnotateAndFilter(v *vcf.Variant) (filter, keep, matched []bool, err error) {
	hits, err := f.file.Search(v.Chrom, v.Start(), v.Stop())
	if err != nil {
		return nil, nil, nil, err
	}
	alleles := v.DecomposedAlleles()
	n := len(alleles)
	filter = make([]bool, n)
	keep = make([]bool, n)
	matched = make([]bool, n)
	annots := make([]map[string]string, n)
	for i, al := range alleles {
		filter[i], keep[i], matched[i], annots[i] = f.compareAllele(al, hits)
	}

	var rsids []string
	for _, name := range f.annotOrder() {
		vals := make([]string, n)
		var any bool
		for i := range alleles {
			if val, ok := annots[i][name]; ok {
				vals[i] = val
				any = true
				if name == "RSID" {
					rsids = append(rsids, val)
				}
			}
		}
		if any {
			v.AddInfoField(f.prefix+"_"+name, vcf.PerAllele(vals))
		}
	}
	if len(rsids) > 0 {
		v.AddIDs(rsids)
	}
	return filter, keep, matched, nil
}

// annotOrder lists annotation field names in output order.
func (f *Filter) annotOrder() []string {
	out := []string{"RSID"}
	out = append(out, freqFieldNames...)
	out = append(out, buildFieldNames...)
	out = append(out, clinvarFieldNames...)
	return out
}

// compareAllele scans candidate records for an identical normalized allele.
// The first matching record is authoritative: its annotations are collected,
// the filter decision derived, and scanning stops.
func (f *Filter) compareAllele(al vcf.Allele, hits []walker.Record) (doFilter, doKeep, matched bool, annot map[string]string) {
	annot = make(map[string]string)
	for _, snp := range hits {
		info := parseInfo(snp.Fields[7])
		for i, sal := range snp.Alleles {
			if al.Pos != sal.Pos || al.Ref != sal.Ref || al.Alt != sal.Alt {
				continue
			}
			matched = true
			annot["RSID"] = snp.Fields[2]
			doFilter = f.applyFreqFields(&snp, i, info, annot, doFilter)
			doFilter = f.applyBuildFields(info, annot, doFilter)
			doFilter, doKeep = f.applyClinVarFields(&snp, i, info, annot, doFilter, doKeep)
		}
		if matched {
			break
		}
	}
	return doFilter, doKeep, matched, annot
}

// applyFreqFields evaluates frequency-bearing fields of a matched record in
// a fixed order. The G5/G5A population flags assert a frequency of at least
// 5%: they satisfy a min-freq lower bound of 0.05 or less and clear any
// frequency-derived filter state set earlier in this evaluation.
func (f *Filter) applyFreqFields(snp *walker.Record, i int, info, annot map[string]string, doFilter bool) bool {
	singleAlt := len(snp.Alleles) == 1
	for _, name := range freqFieldNames {
		if _, known := f.freqFields[name]; !known {
			continue
		}
		val, present := info[name]
		if !present {
			continue
		}
		switch name {
		case "CAF", "TOPMED":
			// Comma-separated frequencies, entry 0 is the REF allele.
			parts := strings.Split(val, ",")
			if i+1 >= len(parts) {
				continue
			}
			entry := parts[i+1]
			annot[name] = entry
			if entry == "." {
				continue
			}
			freq, err := strconv.ParseFloat(entry, 64)
			if err != nil {
				f.logger.Warn("unparseable frequency value",
					zap.String("field", name), zap.String("value", entry))
				continue
			}
			if f.freq != nil && freq >= *f.freq {
				doFilter = true
			}
			if f.minFreq != nil && freq < *f.minFreq {
				doFilter = true
			}
		case "COMMON":
			// COMMON=1 means >1% in 1000 genomes, but does not say
			// which allele when the row has multiple ALTs.
			if !singleAlt {
				continue
			}
			annot[name] = val
			if f.freq != nil && *f.freq <= 0.01 && val == "1" {
				doFilter = true
			}
			if f.minFreq != nil && *f.minFreq <= 0.01 && val == "0" {
				doFilter = true
			}
		case "G5", "G5A":
			if !singleAlt {
				continue
			}
			annot[name] = "1"
			if f.freq != nil && *f.freq <= 0.05 {
				doFilter = true
			}
			if f.minFreq != nil && *f.minFreq <= 0.05 {
				doFilter = false
			}
		}
	}
	return doFilter
}

func (f *Filter) applyBuildFields(info, annot map[string]string, doFilter bool) bool {
	for _, name := range buildFieldNames {
		if _, known := f.buildFields[name]; !known {
			continue
		}
		val, present := info[name]
		if !present {
			continue
		}
		annot[name] = val
		build, err := strconv.Atoi(val)
		if err != nil {
			f.logger.Warn("unparseable dbSNP build",
				zap.String("field", name), zap.String("value", val))
			continue
		}
		if f.build != nil && build < *f.build {
			doFilter = true
		}
		if f.maxBuild != nil && build > *f.maxBuild {
			doFilter = true
		}
	}
	return doFilter
}

// applyClinVarFields collects clinical-significance annotations. With the
// ClinVarPath override enabled, a pathogenic or likely-pathogenic CLNSIG
// forces the allele to be kept.
func (f *Filter) applyClinVarFields(snp *walker.Record, i int, info, annot map[string]string, doFilter, doKeep bool) (bool, bool) {
	if clnalle, present := info["CLNALLE"]; present {
		// Old-style ClinVar annotation: CLNALLE holds the 1-based ALT
		// indexes the remaining CLN* values refer to, in order.
		j := -1
		for k, idxStr := range strings.Split(clnalle, ",") {
			if idx, err := strconv.Atoi(idxStr); err == nil && idx == i+1 {
				j = k
				break
			}
		}
		if j < 0 {
			return doFilter, doKeep
		}
		for _, name := range clinvarFieldNames {
			if name == "CLNALLE" {
				continue
			}
			if _, known := f.clinvarFields[name]; !known {
				continue
			}
			val, present := info[name]
			if !present {
				continue
			}
			parts := strings.Split(val, ",")
			var sig string
			switch {
			case j < len(parts):
				sig = parts[j]
			case name == "GENEINFO":
				sig = val
			default:
				f.logger.Warn("ClinVar field shorter than CLNALLE index",
					zap.String("field", name), zap.String("value", val))
				continue
			}
			annot[name] = sig
			if f.clinvarPath && name == "CLNSIG" && isPathogenic(sig) {
				doFilter = false
				doKeep = true
			}
		}
		return doFilter, doKeep
	}

	if len(snp.Alleles) == 1 {
		if val, present := info["CLNSIG"]; present {
			sig := strings.Split(val, ",")[0]
			annot["CLNSIG"] = sig
			if f.clinvarPath && isPathogenic(sig) {
				doFilter = false
				doKeep = true
			}
		}
	}
	return doFilter, doKeep
}

// isPathogenic reports whether a CLNSIG value carries a pathogenic or
// likely-pathogenic classification.
func isPathogenic(sig string) bool {
	for _, part := range strings.Split(sig, "|") {
		for _, term := range clinvarPathTerms {
			if part == term {
				return true
			}
		}
	}
	return false
}

// parseInfo splits a VCF INFO column into a key/value map; flags map to "".
func parseInfo(info string) map[string]string {
	out := make(map[string]string)
	if info == "." || info == "" {
		return out
	}
	for _, kv := range strings.Split(info, ";") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			out[parts[0]] = parts[1]
		} else {
			out[parts[0]] = ""
		}
	}
	return out
}

// Close releases the reference file handle.
func (f *Filter) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}
