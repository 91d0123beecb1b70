package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"storypack/internal/device"
	"storypack/internal/devicemeta"
	"storypack/internal/faults"
	"storypack/internal/transfer"
)

type foundDevice struct {
	Root     string `json:"root"`
	Source   string `json:"source,omitempty"`
	Family   string `json:"family"`
	Serial   string `json:"serial,omitempty"`
	Hardware string `json:"hardware,omitempty"`
	Contents int    `json:"contents"`
	Error    string `json:"error,omitempty"`
}

func newFindCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "find",
		Short: "List mounted storytellers",
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []string
			if root := strings.TrimSpace(ctx.flags.device); root != "" {
				extra = append(extra, root)
			}
			mounts, err := device.Find(extra...)
			if err != nil {
				return faults.Wrap(faults.ErrIOFailure, "cli", "find devices", "", err)
			}
			cfg, _ := ctx.ensureConfig()
			found := make([]foundDevice, 0, len(mounts))
			for _, m := range mounts {
				fd := foundDevice{Root: m.Root, Source: m.Source, Family: m.Family.String()}
				d, err := device.Open(m.Root, device.Options{KeysDir: cfg.Paths.KeysDir, Logger: ctx.log()})
				if err != nil {
					fd.Error = err.Error()
				} else {
					fd.Serial = d.Identity().SerialString()
					fd.Hardware = string(d.Identity().Hardware)
					fd.Contents = len(d.List(true))
				}
				found = append(found, fd)
			}
			if asJSON {
				return writeJSON(cmd, found)
			}
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "No storyteller found")
				return nil
			}
			rows := make([][]string, 0, len(found))
			for _, fd := range found {
				status := strconv.Itoa(fd.Contents)
				if fd.Error != "" {
					status = fd.Error
				}
				rows = append(rows, []string{fd.Root, fd.Family, fd.Hardware, fd.Serial, status})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Root", "Family", "Hardware", "Serial", "Contents"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				"",
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

type deviceInfo struct {
	Root            string   `json:"root"`
	Family          string   `json:"family"`
	Layout          string   `json:"layout"`
	Hardware        string   `json:"hardware"`
	MetadataVersion int      `json:"metadata_version"`
	Firmware        string   `json:"firmware"`
	Serial          string   `json:"serial"`
	USB             string   `json:"usb"`
	GenuineKeys     bool     `json:"genuine_keys"`
	KeyFile         string   `json:"key_file,omitempty"`
	Contents        int      `json:"contents"`
	Hidden          int      `json:"hidden"`
	FreeBytes       uint64   `json:"free_bytes"`
	Capabilities    []string `json:"capabilities"`
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show storyteller details",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, s *session) error {
				info := describeDevice(s.device)
				if asJSON {
					return writeJSON(cmd, info)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Root:          %s\n", info.Root)
				fmt.Fprintf(out, "Family:        %s (%s layout, metadata v%d)\n", info.Family, info.Layout, info.MetadataVersion)
				fmt.Fprintf(out, "Hardware:      %s\n", info.Hardware)
				fmt.Fprintf(out, "Firmware:      %s\n", info.Firmware)
				fmt.Fprintf(out, "Serial:        %s\n", info.Serial)
				fmt.Fprintf(out, "USB:           %s\n", info.USB)
				if info.Layout == devicemeta.LayoutLater.String() {
					fmt.Fprintf(out, "Device keys:   %s\n", keySource(info))
				}
				fmt.Fprintf(out, "Contents:      %d (%d hidden)\n", info.Contents, info.Hidden)
				fmt.Fprintf(out, "Free space:    %s\n", humanize.IBytes(info.FreeBytes))
				fmt.Fprintf(out, "Operations:    %s\n", strings.Join(info.Capabilities, ", "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func describeDevice(d device.Adapter) deviceInfo {
	id := d.Identity()
	all := d.List(true)
	hidden := 0
	for _, c := range all {
		if c.Hidden {
			hidden++
		}
	}
	free, _ := transfer.StatfsFreeSpace(d.Root())
	return deviceInfo{
		Root:            d.Root(),
		Family:          id.Family.String(),
		Layout:          id.Layout.String(),
		Hardware:        string(id.Hardware),
		MetadataVersion: id.MetadataVersion,
		Firmware:        id.Firmware.String(),
		Serial:          id.SerialString(),
		USB:             id.USB.String(),
		GenuineKeys:     id.GenuineDeviceKey,
		KeyFile:         id.KeyFile,
		Contents:        len(all),
		Hidden:          hidden,
		FreeBytes:       free,
		Capabilities:    d.Capabilities().Names(),
	}
}

func keySource(info deviceInfo) string {
	if info.GenuineKeys {
		return "loaded from " + info.KeyFile
	}
	return "placeholder (pass --key or add " + devicemeta.KeyFileName(info.Serial) + " to the keys directory)"
}
