package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ocforge/ocforge/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var logLevels = map[string]logrus.Level{
	"panic": logrus.PanicLevel,
	"fatal": logrus.FatalLevel,
	"error": logrus.ErrorLevel,
	"warn":  logrus.WarnLevel,
	"info":  logrus.InfoLevel,
	"debug": logrus.DebugLevel,
	"trace": logrus.TraceLevel,
}

var rootCmd = &cobra.Command{
	Use:   "ocforge",
	Short: "Boot configuration and installer media tool for unsupported hardware",
	Long: `ocforge generates boot loader configuration for machines the target OS
does not support out of the box. It probes the host CPU and PCI display
controllers, specializes a known-good configuration baseline for what it
finds, patches driver binaries where the stock ones refuse the hardware,
and assembles bootable installer media.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, ok := logLevels[strings.ToLower(logLevel)]
		if !ok {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		logrus.SetLevel(l)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ocforge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log verbosity (panic, fatal, error, warn, info, debug, trace)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(disksCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
