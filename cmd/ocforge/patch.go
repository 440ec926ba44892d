package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ocforge/ocforge/internal/binpatch"
	"github.com/ocforge/ocforge/internal/hwconfig"
	"github.com/ocforge/ocforge/internal/journal"
	"github.com/ocforge/ocforge/internal/kext"
	"github.com/ocforge/ocforge/internal/media"
	"github.com/ocforge/ocforge/internal/privs"
	"github.com/ocforge/ocforge/internal/syspatch"
	"github.com/spf13/cobra"
)

var patchCmd = &cobra.Command{
	Use:   "patch <name>",
	Short: "Apply a named binary patch to a driver executable",
	Args:  cobra.ExactArgs(1),
	Run:   runPatch,
}

var patchRawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Apply a raw find/replace binary patch",
	Long: `Raw applies a single find/replace substitution given as hex strings.
The replacement must not be longer than the pattern; a shorter
replacement is zero padded so the file never changes size.

Examples:
  ocforge patch raw --file ./AppleIntelSNBGraphicsFB --find 4d61632d39 --replace 4d61632d37`,
	Run: runPatchRaw,
}

var patchSystemCmd = &cobra.Command{
	Use:   "system",
	Short: "Install patched drivers on the running system",
	Long: `System installs kext bundles into the extensions directory, applies
catalog patches to the installed copies, fixes ownership, and optionally
sets boot arguments and rebuilds the kernel cache. Requires root.

Examples:
  sudo ocforge patch system --kexts-dir ./Kexts --kext Lilu.kext --kext WhateverGreen.kext
  sudo ocforge patch system --kexts-dir ./Kexts --kext AppleIntelSNBGraphicsFB.kext \
      --patch snb-board-id --board-id Mac-F221BEC8 --rebuild-cache`,
	Run: runPatchSystem,
}

func init() {
	patchCmd.Long = fmt.Sprintf(`Patch applies a named substitution from the patch catalog to a driver
binary. The target file stays the same size; a shorter replacement is
zero padded. A pattern that is not present is reported and left alone,
so re-running a patch is safe.

--file may point at the executable itself or at a .kext bundle, in
which case the bundle's executable is patched.

Available patches: %s

Examples:
  ocforge patch snb-board-id --file ./AppleIntelSNBGraphicsFB.kext --board-id Mac-F221BEC8`,
		strings.Join(hwconfig.BoardPatchNames(), ", "))

	patchCmd.Flags().String("file", "", "executable or .kext bundle to patch")
	patchCmd.Flags().String("board-id", "", "board identifier to substitute in")
	patchCmd.MarkFlagRequired("file")

	patchRawCmd.Flags().String("file", "", "executable to patch")
	patchRawCmd.Flags().String("find", "", "pattern to replace, hex")
	patchRawCmd.Flags().String("replace", "", "replacement, hex")
	patchRawCmd.MarkFlagRequired("file")
	patchRawCmd.MarkFlagRequired("find")
	patchRawCmd.MarkFlagRequired("replace")

	patchSystemCmd.Flags().String("kexts-dir", "", "directory holding the source kext bundles")
	patchSystemCmd.Flags().StringSlice("kext", nil, "bundle to install (repeatable)")
	patchSystemCmd.Flags().StringSlice("patch", nil, "catalog patch to apply to the installed bundles (repeatable)")
	patchSystemCmd.Flags().String("board-id", "", "board identifier the catalog patches substitute in")
	patchSystemCmd.Flags().String("boot-args", "", "boot arguments to store in NVRAM")
	patchSystemCmd.Flags().Bool("rebuild-cache", false, "rebuild the kernel extension cache afterwards")
	patchSystemCmd.Flags().String("extensions-dir", "", "override the kext install directory")
	patchSystemCmd.MarkFlagRequired("kexts-dir")

	patchCmd.AddCommand(patchRawCmd)
	patchCmd.AddCommand(patchSystemCmd)
}

func runPatch(cmd *cobra.Command, args []string) {
	name := args[0]
	file, _ := cmd.Flags().GetString("file")
	boardID, _ := cmd.Flags().GetString("board-id")

	bp, err := hwconfig.LookupBoardPatch(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Available patches: %s\n", strings.Join(hwconfig.BoardPatchNames(), ", "))
		os.Exit(1)
	}
	if boardID == "" {
		fmt.Fprintf(os.Stderr, "Error: patch %s substitutes a board identifier, pass --board-id\n", name)
		os.Exit(1)
	}

	target, err := resolvePatchTarget(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	applyAndReport(journal.KindPatch, target, binpatch.Patch{
		Name:    bp.Name,
		Find:    bp.Find,
		Replace: []byte(boardID),
	})
}

func runPatchRaw(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")
	findHex, _ := cmd.Flags().GetString("find")
	replaceHex, _ := cmd.Flags().GetString("replace")

	find, err := hex.DecodeString(findHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad --find hex: %v\n", err)
		os.Exit(1)
	}
	replace, err := hex.DecodeString(replaceHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad --replace hex: %v\n", err)
		os.Exit(1)
	}

	applyAndReport(journal.KindPatch, file, binpatch.Patch{
		Name:    "raw",
		Find:    find,
		Replace: replace,
	})
}

func runPatchSystem(cmd *cobra.Command, args []string) {
	kextsDir, _ := cmd.Flags().GetString("kexts-dir")
	kexts, _ := cmd.Flags().GetStringSlice("kext")
	patchNames, _ := cmd.Flags().GetStringSlice("patch")
	boardID, _ := cmd.Flags().GetString("board-id")
	bootArgs, _ := cmd.Flags().GetString("boot-args")
	rebuild, _ := cmd.Flags().GetBool("rebuild-cache")
	extDir, _ := cmd.Flags().GetString("extensions-dir")

	if extDir == "" {
		extDir = syspatch.DefaultExtensionsDir
	}

	token, err := privs.Acquire()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	patches, err := systemPatches(patchNames, boardID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	patcher, err := syspatch.New(syspatch.Config{
		ExtensionsDir: extDir,
		Runner:        media.NewRunner(media.DefaultToolTimeout),
	}, token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	run := beginRun(journal.KindSystem, extDir)

	if len(kexts) > 0 {
		if err := patcher.InstallKexts(ctx, kextsDir, kexts, patches); err != nil {
			run.step("install", journal.StatusFailed, nil)
			run.finish(err)
			fmt.Fprintf(os.Stderr, "Error installing kexts: %v\n", err)
			os.Exit(1)
		}
		run.step("install", journal.StatusOK, map[string]interface{}{"kexts": len(kexts)})
		fmt.Printf("Installed %d kexts\n", len(kexts))
	}

	if bootArgs != "" {
		if err := patcher.ApplyBootArgs(ctx, bootArgs); err != nil {
			run.step("boot_args", journal.StatusFailed, nil)
			run.finish(err)
			fmt.Fprintf(os.Stderr, "Error setting boot arguments: %v\n", err)
			os.Exit(1)
		}
		run.step("boot_args", journal.StatusOK, map[string]interface{}{"boot_args": bootArgs})
		fmt.Printf("Boot arguments set: %s\n", bootArgs)
	}

	if rebuild {
		if err := patcher.RebuildKernelCache(ctx); err != nil {
			run.step("kernel_cache", journal.StatusFailed, nil)
			run.finish(err)
			fmt.Fprintf(os.Stderr, "Error rebuilding kernel cache: %v\n", err)
			os.Exit(1)
		}
		run.step("kernel_cache", journal.StatusOK, nil)
		fmt.Println("Kernel cache rebuilt")
	}

	run.finish(nil)
}

// systemPatches expands catalog patch names into substitutions against
// the installed bundles.
func systemPatches(names []string, boardID string) ([]syspatch.KextPatch, error) {
	if len(names) > 0 && boardID == "" {
		return nil, fmt.Errorf("catalog patches substitute a board identifier, pass --board-id")
	}
	var patches []syspatch.KextPatch
	for _, name := range names {
		bp, err := hwconfig.LookupBoardPatch(name)
		if err != nil {
			return nil, err
		}
		patches = append(patches, syspatch.KextPatch{
			Kext:       bp.Kext,
			Executable: bp.Executable,
			Patch: binpatch.Patch{
				Name:    bp.Name,
				Find:    bp.Find,
				Replace: []byte(boardID),
			},
		})
	}
	return patches, nil
}

// resolvePatchTarget accepts either the executable path itself or a
// .kext bundle directory.
func resolvePatchTarget(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return path, nil
	}
	bundle, err := kext.Load(path)
	if err != nil {
		return "", err
	}
	if !bundle.HasExecutable() {
		return "", fmt.Errorf("%s declares no executable", bundle.Name())
	}
	return bundle.ExecutablePath(), nil
}

func applyAndReport(kind, target string, p binpatch.Patch) {
	run := beginRun(kind, target)

	res, err := binpatch.ApplyPatch(target, p)
	if err != nil {
		run.step(p.Name, journal.StatusFailed, map[string]interface{}{"file": target})
		run.finish(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch res.Outcome {
	case binpatch.OutcomeApplied:
		run.step(p.Name, journal.StatusOK, map[string]interface{}{"file": res.File, "offset": res.Offset})
		fmt.Printf("Patched %s at offset 0x%x\n", res.File, res.Offset)
	case binpatch.OutcomeNotFound:
		run.step(p.Name, journal.StatusSkipped, map[string]interface{}{"file": res.File})
		fmt.Printf("Pattern not present in %s, nothing to do\n", res.File)
	}
	run.finish(nil)
}
