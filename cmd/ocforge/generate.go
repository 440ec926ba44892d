package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ocforge/ocforge/internal/conftree"
	"github.com/ocforge/ocforge/internal/firmware"
	"github.com/ocforge/ocforge/internal/hwconfig"
	"github.com/ocforge/ocforge/internal/hwprofile"
	"github.com/ocforge/ocforge/internal/journal"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a boot configuration for the detected hardware",
	Long: `Generate builds the boot loader configuration document.

The hardware profile is probed from the host unless --profile names a
saved YAML file. Hardware configuration profiles from the catalog are
selected automatically from the detected devices; --config overrides the
selection.

The result is written as an XML property list to --out, or to stdout
with --out -.

Examples:
  ocforge generate
  ocforge generate --profile host.yaml --out EFI/OC/config.plist
  ocforge generate --config nvidia_gtx970 --config intel_alderlake
  ocforge generate --allow-unsigned --out -`,
	Run: runGenerate,
}

func init() {
	generateCmd.Flags().String("profile", "", "load the hardware profile from a YAML file instead of probing")
	generateCmd.Flags().StringSlice("config", nil, "catalog profile to apply (repeatable, overrides auto-selection)")
	generateCmd.Flags().Bool("allow-unsigned", false, "downgrade boot security so unsigned patched drivers load")
	generateCmd.Flags().StringP("out", "o", "config.plist", "output path, - for stdout")
}

func runGenerate(cmd *cobra.Command, args []string) {
	profilePath, _ := cmd.Flags().GetString("profile")
	configs, _ := cmd.Flags().GetStringSlice("config")
	allowUnsigned, _ := cmd.Flags().GetBool("allow-unsigned")
	outPath, _ := cmd.Flags().GetString("out")

	hw, err := hwprofile.Resolve(profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading hardware profile: %v\n", err)
		os.Exit(1)
	}
	for _, w := range hw.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	run := beginRun(journal.KindGenerate, outPath)

	doc, summary, err := generateDocument(run, hw, configs, allowUnsigned)
	if err != nil {
		run.finish(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if outPath == "-" {
		err = doc.WriteXML(os.Stdout)
	} else {
		var data []byte
		if data, err = doc.MarshalXML(); err == nil {
			err = os.WriteFile(outPath, data, 0644)
		}
	}
	if err != nil {
		run.step("write", journal.StatusFailed, map[string]interface{}{"out": outPath})
		run.finish(err)
		fmt.Fprintf(os.Stderr, "Error writing configuration: %v\n", err)
		os.Exit(1)
	}
	run.step("write", journal.StatusOK, map[string]interface{}{"out": outPath})
	run.finish(nil)

	printSummary(summary)
	if outPath != "-" {
		fmt.Fprintf(os.Stderr, "Configuration written to %s\n", outPath)
	}
}

// generateDocument runs catalog selection, merge, and generation, and
// journals each stage. Shared with the build command.
func generateDocument(run *runLog, hw *hwprofile.Profile, configs []string, allowUnsigned bool) (*conftree.Document, *firmware.Summary, error) {
	names := configs
	if len(names) == 0 {
		names = hwconfig.Select(hw)
	}
	run.step("select", journal.StatusOK, map[string]interface{}{"profiles": strings.Join(names, ",")})

	merged, err := hwconfig.Resolve(names)
	if err != nil {
		run.step("merge", journal.StatusFailed, nil)
		return nil, nil, err
	}
	run.step("merge", journal.StatusOK, map[string]interface{}{
		"kexts":     len(merged.Kexts),
		"boot_args": strings.Join(merged.BootArgs, " "),
	})

	doc, summary, err := firmware.Generate(hw, merged, firmware.Options{AllowUnsigned: allowUnsigned})
	if err != nil {
		run.step("generate", journal.StatusFailed, nil)
		return nil, nil, err
	}
	run.step("generate", journal.StatusOK, map[string]interface{}{
		"smbios": summary.SMBIOS,
		"kexts":  len(summary.Kexts),
	})
	run.summary(summary)
	return doc, summary, nil
}

func printSummary(s *firmware.Summary) {
	fmt.Fprintf(os.Stderr, "SMBIOS:     %s\n", s.SMBIOS)
	fmt.Fprintf(os.Stderr, "Serial:     %s\n", s.Identity.SerialNumber)
	fmt.Fprintf(os.Stderr, "Boot args:  %s\n", s.BootArgs)
	fmt.Fprintf(os.Stderr, "Kexts:      %d\n", len(s.Kexts))
	if s.CPUClass != hwprofile.CPUUnknown {
		fmt.Fprintf(os.Stderr, "CPU class:  %s\n", s.CPUClass)
	}
	for _, skipped := range s.SkippedGPUs {
		fmt.Fprintf(os.Stderr, "Skipped:    %s\n", skipped)
	}
	if s.SecurityDowngraded {
		fmt.Fprintln(os.Stderr, "Note: boot security downgraded, unsigned drivers will load")
	}
}
