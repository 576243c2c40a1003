// Package vcf provides VCF file parsing and writing functionality.
package vcf

import (
	"strings"

	"github.com/vasekit/vase/internal/walker"
)

// Variant represents a single genomic variant record from a VCF file.
type Variant struct {
	Chrom  string // Chromosome name (e.g., "12", "chr12")
	Pos    int64  // 1-based genomic position
	ID     string // Variant identifier (e.g., rs ID), "." when absent
	Ref    string // Reference allele
	Alt    string // Alternate allele(s), comma-separated
	Filter string // Filter status (PASS or filter name)

	qual          string // quality column, kept verbatim for round-tripping
	SampleColumns string // FORMAT and sample columns, tab-joined

	info      map[string]string
	infoOrder []string
	alleles   []Allele
}

// Allele is one decomposed, normalized alternate allele of a variant.
type Allele struct {
	Pos int64
	Ref string
	Alt string
}

// Start returns the variant's zero-based start coordinate.
func (v *Variant) Start() int64 { return v.Pos - 1 }

// Stop returns the variant's zero-based exclusive end coordinate.
func (v *Variant) Stop() int64 { return v.Pos - 1 + int64(len(v.Ref)) }

// Alts returns the individual alternate alleles.
func (v *Variant) Alts() []string {
	return strings.Split(v.Alt, ",")
}

// DecomposedAlleles returns one normalized Allele per alternate allele, with
// shared ref/alt suffix then prefix bases trimmed. The result is cached.
func (v *Variant) DecomposedAlleles() []Allele {
	if v.alleles != nil {
		return v.alleles
	}
	alts := v.Alts()
	v.alleles = make([]Allele, len(alts))
	for i, alt := range alts {
		pos, ref, a := walker.Reduce(v.Pos, v.Ref, alt)
		v.alleles[i] = Allele{Pos: pos, Ref: ref, Alt: a}
	}
	return v.alleles
}

// Info returns the value of an INFO key. Flag fields return "" with ok true.
func (v *Variant) Info(key string) (string, bool) {
	val, ok := v.info[key]
	return val, ok
}

// HasInfo reports whether the INFO column contains key.
func (v *Variant) HasInfo(key string) bool {
	_, ok := v.info[key]
	return ok
}

// AddInfoField sets an INFO key, preserving insertion order for output.
// An empty value writes a flag field.
func (v *Variant) AddInfoField(key, value string) {
	if v.info == nil {
		v.info = make(map[string]string)
	}
	if _, ok := v.info[key]; !ok {
		v.infoOrder = append(v.infoOrder, key)
	}
	v.info[key] = value
}

// AddIDs merges identifiers into the ID column, skipping duplicates.
func (v *Variant) AddIDs(ids []string) {
	existing := []string{}
	if v.ID != "" && v.ID != "." {
		existing = strings.Split(v.ID, ";")
	}
	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range ids {
		if id == "" || id == "." || seen[id] {
			continue
		}
		existing = append(existing, id)
		seen[id] = true
	}
	if len(existing) == 0 {
		v.ID = "."
		return
	}
	v.ID = strings.Join(existing, ";")
}

// AddFilter appends a filter name to the FILTER column, replacing PASS or ".".
func (v *Variant) AddFilter(name string) {
	if v.Filter == "" || v.Filter == "." || v.Filter == "PASS" {
		v.Filter = name
		return
	}
	for _, f := range strings.Split(v.Filter, ";") {
		if f == name {
			return
		}
	}
	v.Filter += ";" + name
}

// InfoString serializes the INFO column in insertion order.
func (v *Variant) InfoString() string {
	if len(v.infoOrder) == 0 {
		return "."
	}
	var sb strings.Builder
	for i, key := range v.infoOrder {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(key)
		if val := v.info[key]; val != "" {
			sb.WriteByte('=')
			sb.WriteString(val)
		}
	}
	return sb.String()
}

// IsSNV returns true if the variant is a single nucleotide variant.
func (v *Variant) IsSNV() bool {
	return len(v.Ref) == 1 && len(v.Alt) == 1
}

// PerAllele joins one value per alternate allele into an INFO value, using
// "." for missing entries.
func PerAllele(vals []string) string {
	out := make([]string, len(vals))
	for i, val := range vals {
		if val == "" {
			out[i] = "."
		} else {
			out[i] = val
		}
	}
	return strings.Join(out, ",")
}
