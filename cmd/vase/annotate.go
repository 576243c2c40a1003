package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vasekit/vase/internal/datasource/cadd"
	"github.com/vasekit/vase/internal/datasource/dbsnp"
	"github.com/vasekit/vase/internal/vcf"
)

// softFilterName marks records whose alternate alleles all failed a filter,
// when such records are kept in the output.
const softFilterName = "VASE_filtered"

type annotateOptions struct {
	output        string
	filterRecords bool
	noWalk        bool
	buildIndex    bool

	caddFiles []string
	caddDir   string
	caddDB    string
	minPhred  float64
	minRaw    float64
	toScore   string

	dbsnpFile   string
	dbsnpPrefix string
	freq        float64
	minFreq     float64
	build       int
	maxBuild    int
	clinvarPath bool
}

func newAnnotateCmd(debug, quiet *bool) *cobra.Command {
	var opts annotateOptions

	cmd := &cobra.Command{
		Use:   "annotate [flags] <input.vcf>",
		Short: "Annotate and filter variants in a VCF file",
		Long: `Annotate variants against CADD score files and/or a dbSNP VCF, adding
INFO fields per allele and optionally dropping fully filtered records.
Use '-' to read the VCF from stdin.`,
		Example: `  vase annotate --cadd-dir ~/cadd --min-phred 10 input.vcf
  vase annotate --dbsnp dbsnp.vcf.gz --freq 0.01 --clinvar-path input.vcf
  cat input.vcf | vase annotate --cadd-file scores.tsv.gz -o out.vcf -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(*debug, *quiet)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runAnnotate(cmd, args[0], opts, logger)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.output, "output", "o", "", "Output file (default: stdout; .gz for compressed)")
	fs.BoolVar(&opts.filterRecords, "filter-records", false, "Omit records whose alleles are all filtered")
	fs.BoolVar(&opts.noWalk, "no-walk", false, "Use per-query index lookups instead of walking retrieval")
	fs.BoolVar(&opts.buildIndex, "build-index", false, "Build missing tabix indexes on demand")

	fs.StringSliceVar(&opts.caddFiles, "cadd-file", nil, "CADD score file (repeatable)")
	fs.StringVar(&opts.caddDir, "cadd-dir", "", "Directory of CADD score files (default from config references.cadd_dir)")
	fs.StringVar(&opts.caddDB, "cadd-db", "", "DuckDB CADD score database (default from config references.cadd_db)")
	fs.Float64Var(&opts.minPhred, "min-phred", 0, "Filter alleles with CADD PHRED score below this value")
	fs.Float64Var(&opts.minRaw, "min-raw", 0, "Filter alleles with CADD raw score below this value")
	fs.StringVar(&opts.toScore, "to-score", "", "Write alleles absent from the CADD references to this gzip file")

	fs.StringVar(&opts.dbsnpFile, "dbsnp", "", "dbSNP VCF reference file (default from config references.dbsnp)")
	fs.StringVar(&opts.dbsnpPrefix, "dbsnp-prefix", dbsnp.DefaultPrefix, "Prefix for dbSNP INFO annotations")
	fs.Float64Var(&opts.freq, "freq", 0, "Filter alleles with dbSNP frequency at or above this value")
	fs.Float64Var(&opts.minFreq, "min-freq", 0, "Filter alleles with dbSNP frequency below this value")
	fs.IntVar(&opts.build, "build", 0, "Filter alleles first reported in a dbSNP build before this")
	fs.IntVar(&opts.maxBuild, "max-build", 0, "Filter alleles first reported in a dbSNP build after this")
	fs.BoolVar(&opts.clinvarPath, "clinvar-path", false, "Keep (likely) pathogenic alleles regardless of frequency/build")

	return cmd
}

func runAnnotate(cmd *cobra.Command, input string, opts annotateOptions, logger *zap.Logger) error {
	// Config file values apply only where no flag was given; the config is
	// loaded after flag registration, so defaults resolve here.
	if opts.caddDir == "" {
		opts.caddDir = viper.GetString("references.cadd_dir")
	}
	if opts.caddDB == "" {
		opts.caddDB = viper.GetString("references.cadd_db")
	}
	if opts.dbsnpFile == "" {
		opts.dbsnpFile = viper.GetString("references.dbsnp")
	}

	parser, err := vcf.NewParser(input)
	if err != nil {
		return err
	}
	defer parser.Close()

	var (
		caddFilter  *cadd.Filter
		dbsnpFilter *dbsnp.Filter
		extraInfo   []vcf.InfoMeta
	)

	if len(opts.caddFiles) > 0 || opts.caddDir != "" || opts.caddDB != "" {
		caddFilter, err = cadd.New(cadd.Config{
			Files:             opts.caddFiles,
			Dir:               opts.caddDir,
			DB:                opts.caddDB,
			MinPhred:          flagFloat(cmd, "min-phred", opts.minPhred),
			MinRaw:            flagFloat(cmd, "min-raw", opts.minRaw),
			ToScore:           opts.toScore,
			NoWalk:            opts.noWalk,
			BuildMissingIndex: opts.buildIndex,
			Logger:            logger,
		})
		if err != nil {
			return err
		}
		defer caddFilter.Close()
		extraInfo = append(extraInfo, caddFilter.InfoFields()...)
	}

	if opts.dbsnpFile != "" {
		dbsnpFilter, err = dbsnp.New(dbsnp.Config{
			File:              opts.dbsnpFile,
			Prefix:            opts.dbsnpPrefix,
			Freq:              flagFloat(cmd, "freq", opts.freq),
			MinFreq:           flagFloat(cmd, "min-freq", opts.minFreq),
			Build:             flagInt(cmd, "build", opts.build),
			MaxBuild:          flagInt(cmd, "max-build", opts.maxBuild),
			ClinVarPath:       opts.clinvarPath,
			NoWalk:            opts.noWalk,
			BuildMissingIndex: opts.buildIndex,
			Logger:            logger,
		})
		if err != nil {
			return err
		}
		defer dbsnpFilter.Close()
		extraInfo = append(extraInfo, dbsnpFilter.InfoFields()...)
	}

	if caddFilter == nil && dbsnpFilter == nil {
		return fmt.Errorf("no reference sources configured; use --cadd-file/--cadd-dir/--cadd-db or --dbsnp")
	}

	out, closeOut, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer closeOut()

	writer := vcf.NewWriter(out)
	extraFilter := []vcf.FilterMeta{{
		ID:          softFilterName,
		Description: "All alternate alleles failed the configured vase filters",
	}}
	if err := writer.WriteHeader(parser.Header(), extraInfo, extraFilter); err != nil {
		return err
	}

	var total, written int
	for {
		v, err := parser.Next()
		if err != nil {
			return fmt.Errorf("read variant: %w", err)
		}
		if v == nil {
			break
		}
		total++

		n := len(v.DecomposedAlleles())
		filtered := make([]bool, n)
		kept := make([]bool, n)

		if caddFilter != nil {
			flags, err := caddFilter.AnnotateOrFilter(v)
			if err != nil {
				return err
			}
			for i, f := range flags {
				filtered[i] = filtered[i] || f
			}
		}
		if dbsnpFilter != nil {
			flags, keeps, _, err := dbsnpFilter.AnnotateAndFilter(v)
			if err != nil {
				return err
			}
			for i := range flags {
				filtered[i] = filtered[i] || flags[i]
				kept[i] = kept[i] || keeps[i]
			}
		}

		if allFiltered(filtered, kept) {
			if opts.filterRecords {
				continue
			}
			v.AddFilter(softFilterName)
		}
		if err := writer.WriteVariant(v); err != nil {
			return err
		}
		written++
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	logger.Info("annotation finished",
		zap.Int("records", total),
		zap.Int("written", written))
	return nil
}

// allFiltered reports whether every allele is filtered with no keep override.
func allFiltered(filtered, kept []bool) bool {
	for i := range filtered {
		if !filtered[i] || kept[i] {
			return false
		}
	}
	return len(filtered) > 0
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		return gz, func() error {
			if err := gz.Close(); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}, nil
	}
	return f, f.Close, nil
}

// flagFloat returns the flag's value only when set on the command line,
// so unset thresholds stay disabled rather than becoming zero.
func flagFloat(cmd *cobra.Command, name string, val float64) *float64 {
	if cmd.Flags().Changed(name) {
		return &val
	}
	return nil
}

func flagInt(cmd *cobra.Command, name string, val int) *int {
	if cmd.Flags().Changed(name) {
		return &val
	}
	return nil
}
