package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/ocforge/ocforge/internal/binpatch"
	"github.com/ocforge/ocforge/internal/hwconfig"
	"github.com/ocforge/ocforge/internal/hwprofile"
	"github.com/ocforge/ocforge/internal/journal"
	"github.com/ocforge/ocforge/internal/media"
	"github.com/ocforge/ocforge/internal/payload"
	"github.com/ocforge/ocforge/internal/privs"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build bootable installer media on a USB disk",
	Long: `Build runs the whole pipeline against a disk: generate the boot
configuration, partition the disk, and populate it with the loader tree,
patched kext bundles, and the OS payload.

EVERYTHING ON THE TARGET DISK IS DESTROYED. The build refuses to start
unless --confirm names the same device as --device; without --confirm an
interactive prompt asks for the device name. Requires root.

Examples:
  sudo ocforge build --device /dev/sdb --confirm sdb \
      --efi-template ./OpenCore/EFI --kexts-dir ./Kexts --payload ./Install.iso
  sudo ocforge build --device /dev/sdb --config nvidia_gtx970 --allow-unsigned
  sudo ocforge build --device /dev/sdb --confirm sdb --kexts-dir ./Kexts \
      --patch snb-board-id --board-id Mac-F221BEC8`,
	Run: runBuild,
}

func init() {
	buildCmd.Flags().String("device", "", "target disk, e.g. /dev/sdb")
	buildCmd.Flags().String("confirm", "", "device name confirmation, must match --device")
	buildCmd.Flags().Int("efi-size", 0, "EFI system partition size in MiB (default 200)")
	buildCmd.Flags().String("efi-template", "", "prepared loader tree copied onto the EFI partition")
	buildCmd.Flags().String("kexts-dir", "", "directory holding the source kext bundles")
	buildCmd.Flags().String("payload", "", "OS payload, a directory or an ISO image")
	buildCmd.Flags().StringSlice("library", nil, "versioned library to reconcile in the payload, dir=version (repeatable)")
	buildCmd.Flags().StringSlice("patch", nil, "catalog board patch to apply to the staged bundles (repeatable)")
	buildCmd.Flags().String("board-id", "", "board identifier the catalog patches substitute in")
	buildCmd.Flags().String("profile", "", "load the hardware profile from a YAML file instead of probing")
	buildCmd.Flags().StringSlice("config", nil, "catalog profile to apply (repeatable, overrides auto-selection)")
	buildCmd.Flags().Bool("allow-unsigned", false, "downgrade boot security so unsigned patched drivers load")
	buildCmd.MarkFlagRequired("device")
}

func runBuild(cmd *cobra.Command, args []string) {
	device, _ := cmd.Flags().GetString("device")
	confirm, _ := cmd.Flags().GetString("confirm")
	efiSize, _ := cmd.Flags().GetInt("efi-size")
	efiTemplate, _ := cmd.Flags().GetString("efi-template")
	kextsDir, _ := cmd.Flags().GetString("kexts-dir")
	payloadPath, _ := cmd.Flags().GetString("payload")
	libraries, _ := cmd.Flags().GetStringSlice("library")
	patchNames, _ := cmd.Flags().GetStringSlice("patch")
	boardID, _ := cmd.Flags().GetString("board-id")
	profilePath, _ := cmd.Flags().GetString("profile")
	configs, _ := cmd.Flags().GetStringSlice("config")
	allowUnsigned, _ := cmd.Flags().GetBool("allow-unsigned")

	token, err := privs.Acquire()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	hw, err := hwprofile.Resolve(profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading hardware profile: %v\n", err)
		os.Exit(1)
	}
	for _, w := range hw.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	var src *payload.Source
	if payloadPath != "" {
		if src, err = payload.Resolve(payloadPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	merges, err := parseLibraries(libraries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	patches, err := stagePatches(patchNames, boardID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(patches) > 0 && kextsDir == "" {
		fmt.Fprintln(os.Stderr, "Error: --patch needs --kexts-dir, patches apply to staged bundles")
		os.Exit(1)
	}

	if confirm == "" {
		if confirm, err = promptConfirmation(device); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	run := beginRun(journal.KindBuild, device)
	if err := buildMedia(run, token, hw, buildInput{
		device:        device,
		confirm:       confirm,
		efiSize:       efiSize,
		efiTemplate:   efiTemplate,
		kextsDir:      kextsDir,
		payload:       src,
		libraries:     merges,
		patches:       patches,
		configs:       configs,
		allowUnsigned: allowUnsigned,
	}); err != nil {
		run.finish(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	run.finish(nil)

	fmt.Printf("Installer media on %s is ready\n", device)
}

type buildInput struct {
	device        string
	confirm       string
	efiSize       int
	efiTemplate   string
	kextsDir      string
	payload       *payload.Source
	libraries     []media.LibraryMerge
	patches       []media.KextPatch
	configs       []string
	allowUnsigned bool
}

func buildMedia(run *runLog, token *privs.Token, hw *hwprofile.Profile, in buildInput) error {
	doc, summary, err := generateDocument(run, hw, in.configs, in.allowUnsigned)
	if err != nil {
		return err
	}
	printSummary(summary)

	asm, err := media.NewAssembler(media.Config{
		Device:    in.device,
		EFISizeMB: in.efiSize,
	}, token)
	if err != nil {
		return err
	}
	defer asm.Close()

	ctx := context.Background()

	fmt.Printf("Partitioning %s\n", asm.Device())
	if err := asm.Partition(ctx, in.confirm); err != nil {
		run.step("partition", journal.StatusFailed, nil)
		return err
	}
	run.step("partition", journal.StatusOK, map[string]interface{}{"device": asm.Device()})

	if err := asm.Mount(ctx); err != nil {
		run.step("mount", journal.StatusFailed, nil)
		return err
	}
	run.step("mount", journal.StatusOK, nil)

	kexts := summary.Kexts
	if in.kextsDir == "" {
		fmt.Fprintln(os.Stderr, "Warning: no --kexts-dir, kext bundles are not staged")
		kexts = nil
	}
	// A requested patch implies its bundle, even when the generator did
	// not select it.
	for _, p := range in.patches {
		if !containsString(kexts, p.Kext) {
			kexts = append(kexts, p.Kext)
		}
	}

	fmt.Println("Populating media")
	if err := asm.Populate(ctx, media.PopulateInput{
		Document:    doc,
		EFITemplate: in.efiTemplate,
		KextsDir:    in.kextsDir,
		Kexts:       kexts,
		Patches:     in.patches,
		Payload:     in.payload,
		Libraries:   in.libraries,
	}); err != nil {
		run.step("populate", journal.StatusFailed, nil)
		return err
	}
	run.step("populate", journal.StatusOK, map[string]interface{}{"kexts": len(kexts)})

	if err := asm.Finalize(ctx); err != nil {
		run.step("finalize", journal.StatusFailed, nil)
		return err
	}
	run.step("finalize", journal.StatusOK, nil)
	return nil
}

// promptConfirmation asks the operator to type the target device name.
// Without a terminal the build has to be confirmed with --confirm.
func promptConfirmation(device string) (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return "", fmt.Errorf("no terminal for confirmation, pass --confirm %s", strings.TrimPrefix(device, "/dev/"))
	}

	if size, err := media.DeviceSize(device); err == nil {
		fmt.Printf("Target %s (%s) will be WIPED.\n", device, humanize.Bytes(uint64(size)))
	} else {
		fmt.Printf("Target %s will be WIPED.\n", device)
	}
	fmt.Printf("Type the device name to continue: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading confirmation: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// stagePatches expands catalog patch names into substitutions against
// the staged bundles.
func stagePatches(names []string, boardID string) ([]media.KextPatch, error) {
	if len(names) > 0 && boardID == "" {
		return nil, fmt.Errorf("catalog patches substitute a board identifier, pass --board-id")
	}
	var patches []media.KextPatch
	for _, name := range names {
		bp, err := hwconfig.LookupBoardPatch(name)
		if err != nil {
			return nil, err
		}
		patches = append(patches, media.KextPatch{
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

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// parseLibraries turns dir=version flags into merge requests.
func parseLibraries(specs []string) ([]media.LibraryMerge, error) {
	var merges []media.LibraryMerge
	for _, s := range specs {
		dir, version, ok := strings.Cut(s, "=")
		if !ok || dir == "" || version == "" {
			return nil, fmt.Errorf("bad --library %q, want dir=version", s)
		}
		merges = append(merges, media.LibraryMerge{Dir: dir, Expected: version})
	}
	return merges, nil
}
