package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ocforge/ocforge/internal/journal"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show recent runs from the journal",
	Long: `Report lists recent generate, patch, and build runs with their
outcome. A run ID shows the step-by-step history of that run, which is
how a failed build is diagnosed after the fact.

Examples:
  ocforge report
  ocforge report --kind build --limit 10
  ocforge report 42`,
	Args: cobra.MaximumNArgs(1),
	Run:  runReport,
}

func init() {
	reportCmd.Flags().Int("limit", 20, "maximum number of runs to show")
	reportCmd.Flags().String("kind", "", "filter by run kind (generate, patch, build, system)")
	reportCmd.Flags().Bool("json", false, "Output as JSON")
}

func runReport(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	kind, _ := cmd.Flags().GetString("kind")
	jsonOut, _ := cmd.Flags().GetBool("json")

	j, err := journal.Open(journal.DefaultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	if len(args) == 1 {
		showRun(j, args[0], jsonOut)
		return
	}

	var runs []*journal.Run
	if kind != "" {
		runs, err = j.RunsByKind(kind, limit)
	} else {
		runs, err = j.RecentRuns(limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(runs)
		return
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return
	}

	fmt.Printf("%-5s %-9s %-8s %-17s %-12s %s\n", "ID", "KIND", "STATUS", "STARTED", "SMBIOS", "TARGET")
	fmt.Println(strings.Repeat("-", 78))
	for _, r := range runs {
		smbios := r.SMBIOS
		if smbios == "" {
			smbios = "-"
		}
		fmt.Printf("%-5d %-9s %-8s %-17s %-12s %s\n",
			r.ID, r.Kind, strings.ToUpper(r.Status), r.StartedAt.Format("2006-01-02 15:04"), smbios, r.Target)
		if r.Status == journal.StatusFailed && r.Error != "" {
			fmt.Printf("      %s\n", r.Error)
		}
	}
}

func showRun(j *journal.Journal, arg string, jsonOut bool) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad run ID %q\n", arg)
		os.Exit(1)
	}

	run, err := j.GetRun(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
		os.Exit(1)
	}
	if run == nil {
		fmt.Fprintf(os.Stderr, "Run %d not found\n", id)
		os.Exit(1)
	}

	events, err := j.RunEvents(id, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(map[string]interface{}{"run": run, "events": events})
		return
	}

	fmt.Printf("Run %d: %s %s\n", run.ID, run.Kind, run.Target)
	fmt.Printf("Status:    %s\n", strings.ToUpper(run.Status))
	fmt.Printf("Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		fmt.Printf("Finished:  %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if run.SMBIOS != "" {
		fmt.Printf("SMBIOS:    %s\n", run.SMBIOS)
	}
	if run.BootArgs != "" {
		fmt.Printf("Boot args: %s\n", run.BootArgs)
	}
	if run.KextCount > 0 {
		fmt.Printf("Kexts:     %d\n", run.KextCount)
	}
	if run.SecurityDowngraded {
		fmt.Println("Security:  downgraded")
	}
	if run.Error != "" {
		fmt.Printf("Error:     %s\n", run.Error)
	}

	if len(events) > 0 {
		fmt.Println("\nSteps:")
		for _, e := range events {
			fmt.Printf("  %s  %-12s %-8s %s\n",
				e.Timestamp.Format("15:04:05"), e.Step, strings.ToUpper(e.Status), e.Details)
		}
	}
}
