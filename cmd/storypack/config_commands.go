package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storypack/internal/config"
	"storypack/internal/faults"
)

var skipConfig = map[string]string{"skipConfigLoad": "true"}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the storypack settings file",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var dest string
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented settings file to start from",
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := settingsPath(dest)
			if err != nil {
				return err
			}
			if !force {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s exists; pass --force to replace it", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return faults.Wrap(faults.ErrIOFailure, "cli", "config init", target, statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return faults.Wrap(faults.ErrIOFailure, "cli", "config init", target, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Settings written to %s\n", target)
			fmt.Fprintln(out, "Put <SERIAL>.keys files in paths.keys_dir to read content other tools installed on v3 devices.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "path", "p", "", "Where to write the settings file (default: the standard location)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace a settings file that already exists")
	return cmd
}

// settingsPath expands an explicit destination or falls back to the default
// settings location.
func settingsPath(dest string) (string, error) {
	if dest = strings.TrimSpace(dest); dest == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(dest)
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the settings file and show the values in effect",
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(ctx.flags.config))
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			source := path
			if !exists {
				source += " (missing, built-in defaults)"
			}
			rows := [][]string{
				{"cache directory", cfg.Paths.CacheDir},
				{"keys directory", cfg.Paths.KeysDir},
				{"export directory", cfg.Paths.ExportDir},
				{"catalog", cfg.Catalog.URL},
				{"catalog offline", yesNo(cfg.Catalog.Offline)},
				{"catalog max age", strconv.Itoa(cfg.Catalog.MaxAgeHours) + "h"},
				{"log level", cfg.Logging.Level},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, rows, nil, source))
			fmt.Fprintln(cmd.OutOrStdout(), "Settings OK")
			return nil
		},
	}
}
