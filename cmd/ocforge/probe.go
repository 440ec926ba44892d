package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/ocforge/ocforge/internal/hwprofile"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Detect host hardware and print the profile",
	Long: `Probe inspects the host CPU, PCI display controllers, memory, and
baseboard, and prints the resulting hardware profile.

With --profile the profile is loaded from a YAML file instead of probed,
which is how a run on one machine targets another. --save writes the
probed profile out for later runs.

Examples:
  ocforge probe
  ocforge probe --json
  ocforge probe --save host.yaml
  ocforge probe --profile host.yaml`,
	Run: runProbe,
}

func init() {
	probeCmd.Flags().Bool("json", false, "Output as JSON")
	probeCmd.Flags().String("profile", "", "load the profile from a YAML file instead of probing")
	probeCmd.Flags().String("save", "", "write the profile to a YAML file")
}

func runProbe(cmd *cobra.Command, args []string) {
	jsonOut, _ := cmd.Flags().GetBool("json")
	profilePath, _ := cmd.Flags().GetString("profile")
	savePath, _ := cmd.Flags().GetString("save")

	hw, err := hwprofile.Resolve(profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading hardware profile: %v\n", err)
		os.Exit(1)
	}

	if savePath != "" {
		if err := hw.Save(savePath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving profile: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Profile written to %s\n", savePath)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(hw)
		return
	}

	printProfile(hw)
}

func printProfile(hw *hwprofile.Profile) {
	fmt.Printf("CPU:    %s\n", hw.CPU.Brand)
	fmt.Printf("        family 0x%X model 0x%X stepping %d, %d cores / %d threads\n",
		hw.CPU.Family, hw.CPU.Model, hw.CPU.Stepping, hw.CPU.Cores, hw.CPU.Threads)
	if class := hwprofile.ClassifyCPU(hw.CPU); class != hwprofile.CPUUnknown {
		fmt.Printf("        patch class: %s\n", class)
	}
	if hw.RAMBytes > 0 {
		fmt.Printf("RAM:    %s\n", humanize.IBytes(hw.RAMBytes))
	}
	if hw.Board.Vendor != "" || hw.Board.Name != "" {
		fmt.Printf("Board:  %s %s\n", hw.Board.Vendor, hw.Board.Name)
	}

	fmt.Println("\nDisplay controllers:")
	if len(hw.GPUs) == 0 {
		fmt.Println("  (none detected)")
	}
	for _, gpu := range hw.GPUs {
		status := "unsupported"
		if gpu.Supported {
			status = "supported"
		}
		fmt.Printf("  [%04x:%04x] %-28s %s\n", gpu.VendorID, gpu.DeviceID, gpu.Model, status)
		if gpu.PCIPath != "" {
			fmt.Printf("              %s\n", gpu.PCIPath)
		}
		if gpu.VRAMBytes != nil {
			fmt.Printf("              VRAM %s\n", humanize.IBytes(*gpu.VRAMBytes))
		}
	}

	if warns := hw.Warnings(); len(warns) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warns {
			fmt.Printf("  - %s\n", w)
		}
	}
}
