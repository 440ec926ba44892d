package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ocforge/ocforge/internal/media"
	"github.com/spf13/cobra"
)

var disksCmd = &cobra.Command{
	Use:   "disks",
	Short: "List candidate target disks",
	Long: `Disks lists block devices that can take installer media. Disks
carrying a filesystem the running system depends on are hidden unless
--all is given, and are never accepted as build targets.`,
	Run: runDisks,
}

func init() {
	disksCmd.Flags().Bool("json", false, "Output as JSON")
	disksCmd.Flags().Bool("all", false, "include system disks")
}

func runDisks(cmd *cobra.Command, args []string) {
	jsonOut, _ := cmd.Flags().GetBool("json")
	all, _ := cmd.Flags().GetBool("all")

	disks, err := media.ListDisks(context.Background(), media.NewRunner(media.DefaultToolTimeout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing disks: %v\n", err)
		os.Exit(1)
	}
	if !all {
		disks = media.Candidates(disks)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(disks)
		return
	}

	if len(disks) == 0 {
		fmt.Println("No candidate disks found. Plug in a USB disk, or use --all.")
		return
	}

	fmt.Printf("%-12s %-10s %-6s %-11s %s\n", "DEVICE", "SIZE", "TRAN", "FLAGS", "MODEL")
	fmt.Println(strings.Repeat("-", 60))
	for _, d := range disks {
		var flags []string
		if d.Removable {
			flags = append(flags, "removable")
		}
		if d.System {
			flags = append(flags, "SYSTEM")
		}
		flag := strings.Join(flags, ",")
		if flag == "" {
			flag = "-"
		}
		fmt.Printf("%-12s %-10s %-6s %-11s %s\n", d.Path, d.HumanSize(), d.Transport, flag, d.Model)
	}
}
