package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Official catalog utilities",
	}
	catalogCmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Download the official catalog now",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			svc, err := ctx.openCatalog(runCtx)
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.Official().Refresh(runCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog refreshed: %d official pack(s)\n", svc.Official().Len())
			return nil
		},
	})
	return catalogCmd
}
