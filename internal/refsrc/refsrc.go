// Package refsrc manages open reference annotation files: the BGZF handle,
// its tabix index, contig naming convention, and the retrieval mode used to
// answer interval queries.
package refsrc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bgzf"
	"go.uber.org/zap"

	"github.com/vasekit/vase/internal/tabix"
	"github.com/vasekit/vase/internal/walker"
)

// ConfigError reports unusable reference file configuration. It is fatal and
// raised at open time.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "refsrc: " + e.Reason
	}
	return fmt.Sprintf("refsrc: %s: %s", e.Path, e.Reason)
}

// Options configures how reference files are opened and queried.
type Options struct {
	// Parse normalizes one raw reference row.
	Parse walker.ParseFunc

	// NoWalk answers every query with an independent index-assisted fetch
	// instead of the sequential walking cursor.
	NoWalk bool

	// BuildMissingIndex builds a tabix index on demand when none is found,
	// using BuildColumns (VCF column layout when zero).
	BuildMissingIndex bool
	BuildColumns      tabix.BuildOpts

	Logger *zap.Logger
}

// File is one open reference file.
type File struct {
	Path string

	f      *os.File
	bg     *bgzf.Reader
	idx    *tabix.Index
	wk     *walker.Walker
	ft     *walker.Fetcher
	hasChr bool
	noWalk bool
}

// Open opens the reference file at path and loads (or builds) its index.
// Files mixing "chr"-prefixed and bare contig names are rejected.
func Open(path string, opts Options) (*File, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	idx, err := tabix.Load(path + tabix.Suffix)
	if err != nil {
		if !opts.BuildMissingIndex {
			return nil, err
		}
		logger.Warn("no usable index found, building one", zap.String("file", path))
		if _, berr := tabix.Build(path, opts.BuildColumns); berr != nil {
			return nil, fmt.Errorf("building index for %s: %w", path, berr)
		}
		if idx, err = tabix.Load(path + tabix.Suffix); err != nil {
			return nil, err
		}
	}

	hasChr, err := checkContigs(path, idx)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference file: %w", err)
	}
	bg, err := bgzf.NewReader(f, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open reference file %s: %w", path, err)
	}

	cur := walker.NewCursor(bg)
	rf := &File{
		Path:   path,
		f:      f,
		bg:     bg,
		idx:    idx,
		hasChr: hasChr,
		noWalk: opts.NoWalk,
	}
	if opts.NoWalk {
		rf.ft = walker.NewFetcher(cur, idx, opts.Parse)
		rf.ft.SetLogger(logger)
	} else {
		rf.wk = walker.New(cur, idx, opts.Parse)
		rf.wk.SetLogger(logger)
	}
	return rf, nil
}

// checkContigs detects the file's "chr" prefix convention and rejects files
// that mix conventions.
func checkContigs(path string, idx *tabix.Index) (bool, error) {
	var hasChr, noChr bool
	for _, name := range idx.Names() {
		if strings.HasPrefix(name, "chr") {
			hasChr = true
		} else {
			noChr = true
		}
	}
	if hasChr && noChr {
		return false, &ConfigError{
			Path:   path,
			Reason: "contig names both with and without 'chr' prefix; use files with a single naming convention",
		}
	}
	return hasChr, nil
}

// ConvertContig rewrites a query contig name to this file's prefix
// convention.
func (rf *File) ConvertContig(contig string) string {
	if strings.HasPrefix(contig, "chr") {
		if !rf.hasChr {
			return strings.TrimPrefix(contig, "chr")
		}
	} else if rf.hasChr {
		return "chr" + contig
	}
	return contig
}

// HasChr reports whether the file uses "chr"-prefixed contig names.
func (rf *File) HasChr() bool { return rf.hasChr }

// Index returns the file's tabix index.
func (rf *File) Index() *tabix.Index { return rf.idx }

// Search returns normalized records overlapping the zero-based half-open
// interval [start,end), converting contig to this file's naming convention.
// An absent contig yields an empty result.
func (rf *File) Search(contig string, start, end int64) ([]walker.Record, error) {
	contig = rf.ConvertContig(contig)
	if rf.noWalk {
		return rf.ft.Fetch(contig, start, end)
	}
	return rf.wk.Next(contig, start, end)
}

// Close releases the underlying file handle.
func (rf *File) Close() error {
	if rf.bg != nil {
		rf.bg.Close()
	}
	if rf.f != nil {
		return rf.f.Close()
	}
	return nil
}

// Set is an ordered collection of reference files queried together.
type Set struct {
	files []*File
}

// OpenSet opens the given files plus every .gz/.bgz file found in dir (when
// non-empty). At least one file must result.
func OpenSet(paths []string, dir string, opts Options) (*Set, error) {
	all := append([]string(nil), paths...)
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading reference directory: %w", err)
		}
		var found bool
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if name := e.Name(); strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".bgz") {
				all = append(all, filepath.Join(dir, name))
				found = true
			}
		}
		if !found && len(paths) == 0 {
			return nil, &ConfigError{Path: dir, Reason: "no .gz or .bgz reference files found"}
		}
	}
	if len(all) == 0 {
		return nil, &ConfigError{Reason: "no reference files provided"}
	}

	s := &Set{}
	for _, p := range all {
		rf, err := Open(p, opts)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.files = append(s.files, rf)
	}
	return s, nil
}

// Files returns the open files in query order.
func (s *Set) Files() []*File { return s.files }

// Search fans a query out across all files in order and concatenates the
// results. Records are not deduplicated across files.
func (s *Set) Search(contig string, start, end int64) ([]walker.Record, error) {
	var hits []walker.Record
	for _, rf := range s.files {
		recs, err := rf.Search(contig, start, end)
		if err != nil {
			return nil, err
		}
		hits = append(hits, recs...)
	}
	return hits, nil
}

// Close closes every file, returning the first error encountered.
func (s *Set) Close() error {
	var first error
	for _, rf := range s.files {
		if err := rf.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
