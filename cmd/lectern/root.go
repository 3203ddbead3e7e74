// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/lectern/internal/config"
	"github.com/sigil-dev/lectern/internal/secrets"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "lectern/skip-config"

// cli carries state shared by every subcommand of one root command.
type cli struct {
	v   *viper.Viper
	cfg *config.Config
}

// NewRootCmd creates the root lectern command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "lectern",
		Short: "Lectern answers questions about an indexed audiobook",
		Long: `Lectern indexes precomputed text embeddings into a persistent vector store
and answers questions using the passages nearest to them.

Distances are reported lower-is-closer. For cosine collections a distance
below about 0.5 is conventionally relevant; the scale depends on the metric
and embedding model, so treat it as a guide rather than a threshold.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return c.load(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newIngestCmd(c),
		newQueryCmd(c),
		newSearchCmd(c),
		newCollectionsCmd(c),
		newStatsCmd(c),
		newProvidersCmd(c),
		newDoctorCmd(c),
		newSecretCmd(),
		newServeCmd(c),
		newInitCmd(),
		newVersionCmd(),
	)

	return root
}

// load reads .env, then configuration with the standard precedence
// (env > file > defaults), resolves keyring references and sets up logging.
func (c *cli) load(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()

	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return lecternerr.Errorf(lecternerr.CodeConfigLoadReadFailure, "loading %s: %w", envFile, err)
		}
	}

	v := c.v
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return lecternerr.Errorf(lecternerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so viper does not also try the bare
		// name, which would match a ./lectern binary.
		v.SetConfigName("lectern")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/lectern")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return lecternerr.Errorf(lecternerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	if err := secrets.ResolveViper(v, secretStoreFactory()); err != nil {
		return err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	c.cfg = cfg

	verbose, _ := flags.GetBool("verbose")
	setupLogging(cmd.ErrOrStderr(), cfg.Log, verbose)
	config.WarnInsecurePermissions(v.ConfigFileUsed())
	slog.Debug("configuration loaded", "file", v.ConfigFileUsed(), "backend", cfg.Storage.Backend)
	return nil
}

func setupLogging(w io.Writer, lc config.LogConfig, verbose bool) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}
