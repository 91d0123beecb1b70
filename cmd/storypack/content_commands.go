package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"storypack/internal/config"
	"storypack/internal/device"
	"storypack/internal/faults"
)

type listedContent struct {
	Position int    `json:"position"`
	UUID     string `json:"uuid"`
	Short    string `json:"short"`
	Name     string `json:"name"`
	Hidden   bool   `json:"hidden"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var all, asJSON bool
	cmd := &cobra.Command{
		Use:     "list [query]",
		Aliases: []string{"ls"},
		Short:   "List installed content",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, s *session) error {
				contents := s.device.List(all)
				if len(args) == 1 {
					contents = filterContents(s.device.Find(args[0]), all)
				}
				listed := make([]listedContent, 0, len(contents))
				for i, c := range contents {
					listed = append(listed, listedContent{
						Position: i + 1,
						UUID:     c.String(),
						Short:    c.Short(),
						Name:     c.Name,
						Hidden:   c.Hidden,
					})
				}
				if asJSON {
					return writeJSON(cmd, listed)
				}
				out := cmd.OutOrStdout()
				if len(listed) == 0 {
					fmt.Fprintln(out, "No content installed")
					return nil
				}
				rows := make([][]string, 0, len(listed))
				for _, l := range listed {
					rows = append(rows, []string{strconv.Itoa(l.Position), l.Short, l.UUID, l.Name, yesNo(l.Hidden)})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Short", "UUID", "Name", "Hidden"},
					rows,
					[]columnAlignment{alignRight},
					fmt.Sprintf("%d content(s) on %s", len(listed), s.device.Root()),
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include hidden content")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func filterContents(contents []device.Content, includeHidden bool) []device.Content {
	if includeHidden {
		return contents
	}
	out := contents[:0]
	for _, c := range contents {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive|directory>...",
		Short: "Install story pack archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				var failed int
				for _, arg := range args {
					path, err := config.ExpandPath(arg)
					if err != nil {
						return err
					}
					info, err := os.Stat(path)
					if err != nil {
						return faults.Wrap(faults.ErrNotFound, "cli", "import", path, err)
					}
					if !info.IsDir() {
						id, err := s.device.Import(runCtx, path)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "Imported %s (%s)\n", strings.ToUpper(id.String()), s.catalog.DisplayName(id))
						continue
					}
					if !s.device.Capabilities().Has(device.CapImportDirectory) {
						return faults.Wrap(faults.ErrUnsupportedCapability, "cli", "import",
							"this device imports one archive at a time; pass archive paths", nil)
					}
					results, err := s.device.ImportDirectory(runCtx, path)
					for _, r := range results {
						if r.Err != nil {
							failed++
							fmt.Fprintf(out, "Failed   %s: %v\n", r.Path, r.Err)
							continue
						}
						fmt.Fprintf(out, "Imported %s (%s) from %s\n", strings.ToUpper(r.ID.String()), s.catalog.DisplayName(r.ID), r.Path)
					}
					if err != nil {
						return err
					}
				}
				if failed > 0 {
					fmt.Fprintf(out, "%d archive(s) could not be imported\n", failed)
				}
				return nil
			})
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export <query|ALL>",
		Short: "Write installed content to portable archives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(outDir)
			if target == "" {
				target = cfg.Paths.ExportDir
			}
			if target, err = config.ExpandPath(target); err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return faults.Wrap(faults.ErrIOFailure, "cli", "export", target, err)
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				if args[0] != "ALL" {
					path, err := s.device.Export(runCtx, args[0], target)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Exported %s\n", path)
					return nil
				}
				paths, err := s.device.ExportAll(runCtx, target)
				for _, p := range paths {
					fmt.Fprintf(out, "Exported %s\n", p)
				}
				if err != nil {
					return err
				}
				if total := len(s.device.List(true)); len(paths) < total {
					fmt.Fprintf(out, "%d of %d content(s) exported; see the log for failures\n", len(paths), total)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Destination directory (default: paths.export_dir)")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "remove <query>",
		Aliases: []string{"rm"},
		Short:   "Delete installed content",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				confirm := promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr())
				if yes {
					confirm = nil
				}
				removed, err := s.device.Remove(runCtx, args[0], confirm)
				if err != nil {
					if errors.Is(err, faults.ErrCancelled) {
						fmt.Fprintln(cmd.OutOrStdout(), "Nothing removed")
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", removed.String(), removed.Name)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete content directories missing from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				report, err := s.device.Cleanup(runCtx)
				out := cmd.OutOrStdout()
				for _, name := range report.Removed {
					fmt.Fprintf(out, "Deleted %s\n", name)
				}
				for _, name := range report.Failed {
					fmt.Fprintf(out, "Could not delete %s\n", name)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d orphan director%s, reclaimed %s\n",
					len(report.Removed), plural(len(report.Removed), "y", "ies"), humanize.IBytes(uint64(report.Bytes)))
				return nil
			})
		},
	}
}

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Re-index content directories missing from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				report, err := s.device.Recover(runCtx, dryRun)
				out := cmd.OutOrStdout()
				verb := "Recovered"
				if dryRun {
					verb = "Found"
				}
				for _, c := range report.Recovered {
					fmt.Fprintf(out, "%s %s (%s)\n", verb, c.String(), c.Name)
				}
				for _, name := range report.Repaired {
					fmt.Fprintf(out, "Bad authorization file in %s\n", name)
				}
				for _, name := range report.Skipped {
					fmt.Fprintf(out, "Skipped %s\n", name)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %d lost content(s)\n", verb, len(report.Recovered))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report lost content without changing the device")
	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
