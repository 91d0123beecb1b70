package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"storypack/internal/device"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report storytellers as they are plugged in and out",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var mu sync.Mutex
			watcher := device.NewWatcher(ctx.log(), func(_ context.Context, ev device.Event) {
				mu.Lock()
				defer mu.Unlock()
				reportEvent(out, ev, device.Options{KeysDir: cfg.Paths.KeysDir, Logger: ctx.log()})
			})
			if err := watcher.Start(runCtx); err != nil {
				return err
			}
			defer watcher.Stop()
			fmt.Fprintln(out, "Watching for storytellers; press Ctrl-C to stop")
			<-runCtx.Done()
			return nil
		},
	}
}

func reportEvent(out io.Writer, ev device.Event, opts device.Options) {
	if ev.Action == "remove" {
		fmt.Fprintf(out, "Unplugged %s (%s)\n", ev.Node, ev.USB)
		return
	}
	if ev.Root == "" {
		fmt.Fprintf(out, "Plugged %s (%s), not mounted yet\n", ev.Node, ev.USB)
		return
	}
	d, err := device.Open(ev.Root, opts)
	if err != nil {
		fmt.Fprintf(out, "Plugged %s at %s: %v\n", ev.Node, ev.Root, err)
		return
	}
	id := d.Identity()
	fmt.Fprintf(out, "Plugged %s at %s: %s %s, serial %s, %d content(s)\n",
		ev.Node, ev.Root, id.Family, id.Hardware, id.SerialString(), len(d.List(true)))
}
