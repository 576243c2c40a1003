package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vasekit/vase/internal/datasource/cadd"
)

func newLoadCmd(debug, quiet *bool) *cobra.Command {
	var (
		dbPath string
		scores string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load CADD scores into a DuckDB database",
		Long: `Bulk-load a CADD scores TSV (optionally gzipped) into a DuckDB database
for random-access lookups with 'vase annotate --cadd-db'.`,
		Example: `  vase load --db ~/.vase/cadd.duckdb --scores whole_genome_SNVs.tsv.gz`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(*debug, *quiet)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if scores == "" {
				return fmt.Errorf("--scores is required")
			}
			if dbPath == "" {
				dbPath = viper.GetString("references.cadd_db")
			}
			if dbPath == "" {
				return fmt.Errorf("--db is required (or set references.cadd_db in config)")
			}
			store, err := cadd.OpenStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Load(scores); err != nil {
				return err
			}
			count, err := store.Count()
			if err != nil {
				return err
			}
			fmt.Printf("Loaded %d CADD score rows into %s\n", count, dbPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB database path (default from config references.cadd_db)")
	cmd.Flags().StringVar(&scores, "scores", "", "CADD scores TSV file")

	return cmd
}
