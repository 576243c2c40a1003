package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newRootCmd() *cobra.Command {
	var (
		debug bool
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "vase",
		Short: "Annotate and filter VCF variants against reference score files",
		Long: `vase annotates and filters genomic variants (VCF) against large
coordinate-sorted reference files such as CADD score files and dbSNP,
using coordinate-indexed walking retrieval.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Only log errors")

	cmd.AddCommand(newAnnotateCmd(&debug, &quiet))
	cmd.AddCommand(newLoadCmd(&debug, &quiet))
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// initConfig loads ~/.vase.yaml when present.
func initConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	viper.AddConfigPath(home)
	viper.SetConfigName(".vase")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func newLogger(debug, quiet bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	switch {
	case debug:
		cfg = zap.NewDevelopmentConfig()
	case quiet:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}
	return cfg.Build()
}
