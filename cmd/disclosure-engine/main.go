// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the disclosure-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/disclosure-engine/internal/logging"
	"github.com/pdiddy/disclosure-engine/internal/secrets"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// secretsDir holds one file per API key or credential.
const secretsDir = ".secrets/"

// rootCmd is the base command for the disclosure-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "disclosure-engine",
	Short: "Flag researcher publications with possible undisclosed foreign ties",
	Long: `disclosure-engine reads a roster of researchers, searches PubMed or OpenAlex
for each researcher's recent publications, asks a language model to identify
the countries, institutions and funders behind each publication, and flags
publications that involve a watchlisted country.

The result is a CSV report with one row per analyzed publication, plus a skip
list naming every researcher or publication that could not be analyzed.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./disclosure-engine.yaml or ~/.config/disclosure-engine/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console or json")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("disclosure-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "disclosure-engine"))
		}
	}

	configureViper(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setup loads configuration, builds the logger, and fills API keys from the
// secrets directory. Flags named in bindings are bound first so they take
// precedence over env and the config file.
func setup(cmd *cobra.Command, bindings map[string]string) (types.Config, *zap.Logger, error) {
	v := viper.GetViper()
	bindings["log.level"] = "log-level"
	bindings["log.format"] = "log-format"
	if err := bindFlags(v, cmd.Flags(), bindings); err != nil {
		return types.Config{}, nil, err
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return types.Config{}, nil, err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return types.Config{}, nil, err
	}

	s, err := secrets.Load(secretsDir, log)
	if err != nil {
		return types.Config{}, nil, err
	}
	if names := s.Names(); len(names) > 0 {
		log.Debug("loaded secrets", zap.Strings("names", names))
	}
	applySecrets(&cfg, s)

	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
