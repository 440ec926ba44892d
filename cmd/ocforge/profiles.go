package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ocforge/ocforge/internal/hwconfig"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the hardware configuration catalog",
	Long: `Profiles lists the catalog entries generate and build can apply.
Entries are normally selected from the probed hardware; --config on
generate or build forces specific ones.`,
	Run: runProfiles,
}

func init() {
	profilesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runProfiles(cmd *cobra.Command, args []string) {
	jsonOut, _ := cmd.Flags().GetBool("json")

	names := hwconfig.Names()

	if jsonOut {
		out := make(map[string]interface{}, len(names))
		for _, name := range names {
			p, err := hwconfig.Lookup(name)
			if err != nil {
				continue
			}
			out[name] = map[string]interface{}{
				"title":     p.Title,
				"kexts":     p.Kexts,
				"boot_args": p.BootArgs,
				"smbios":    p.SMBIOS,
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}

	fmt.Printf("%-20s %-26s %-12s %s\n", "NAME", "TITLE", "SMBIOS", "KEXTS")
	fmt.Println(strings.Repeat("-", 80))
	for _, name := range names {
		p, err := hwconfig.Lookup(name)
		if err != nil {
			continue
		}
		smbios := p.SMBIOS
		if smbios == "" {
			smbios = "-"
		}
		fmt.Printf("%-20s %-26s %-12s %d\n", p.Name, p.Title, smbios, len(p.Kexts))
	}

	fmt.Println("\nBoard patches for the patch command:")
	for _, name := range hwconfig.BoardPatchNames() {
		bp, err := hwconfig.LookupBoardPatch(name)
		if err != nil {
			continue
		}
		fmt.Printf("  %-20s %s (%s)\n", bp.Name, bp.Comment, bp.Kext)
	}
}
