// Package syspatch applies generated drivers and boot arguments to the
// running system instead of removable media. Everything here mutates
// the booted OS, so the constructor demands a privilege token.
package syspatch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ocforge/ocforge/internal/binpatch"
	"github.com/ocforge/ocforge/internal/fsutil"
	"github.com/ocforge/ocforge/internal/kext"
	"github.com/ocforge/ocforge/internal/privs"
)

var log = logrus.WithField("service", "syspatch")

// DefaultExtensionsDir is where third-party kexts live on the target.
const DefaultExtensionsDir = "/Library/Extensions"

// Runner executes the system tools. media.NewRunner satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// KextPatch is a binary substitution applied to one installed bundle.
type KextPatch struct {
	Kext       string
	Executable string
	Patch      binpatch.Patch
}

// Config sets up a Patcher.
type Config struct {
	// ExtensionsDir overrides the kext install location. Zero means
	// DefaultExtensionsDir.
	ExtensionsDir string

	Runner Runner
}

// Patcher installs kexts and boot arguments on the running system.
type Patcher struct {
	extDir string
	runner Runner
}

// New returns a Patcher. The privilege token is demanded up front; every
// operation writes to system locations.
func New(cfg Config, token *privs.Token) (*Patcher, error) {
	if token == nil {
		return nil, fmt.Errorf("system patching requires privileges, none acquired")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("no tool runner given")
	}
	if cfg.ExtensionsDir == "" {
		cfg.ExtensionsDir = DefaultExtensionsDir
	}
	return &Patcher{extDir: cfg.ExtensionsDir, runner: cfg.Runner}, nil
}

// InstallKexts copies the named bundles into the extensions directory,
// applies their patches to the installed copies, and fixes ownership.
// Sources are never modified.
func (p *Patcher) InstallKexts(ctx context.Context, kextsDir string, bundles []string, patches []KextPatch) error {
	patchesFor := make(map[string][]KextPatch)
	for _, kp := range patches {
		patchesFor[kp.Kext] = append(patchesFor[kp.Kext], kp)
	}

	for _, bundle := range bundles {
		src := filepath.Join(kextsDir, bundle)
		if _, err := kext.Load(src); err != nil {
			return fmt.Errorf("kext %s: %w", bundle, err)
		}

		dst := filepath.Join(p.extDir, bundle)
		if err := fsutil.CopyDir(src, dst); err != nil {
			return fmt.Errorf("installing %s: %w", bundle, err)
		}

		for _, kp := range patchesFor[bundle] {
			target := filepath.Join(dst, kp.Executable)
			res, err := binpatch.ApplyPatch(target, kp.Patch)
			if err != nil {
				return fmt.Errorf("patching %s: %w", bundle, err)
			}
			if res.Outcome == binpatch.OutcomeNotFound {
				log.WithFields(logrus.Fields{
					"kext":  bundle,
					"patch": kp.Patch.Name,
				}).Warn("patch target not found in installed kext; skipped")
			}
		}

		// Kexts refuse to load without root:wheel ownership.
		if _, err := p.runner.Run(ctx, "chown", "-R", "root:wheel", dst); err != nil {
			return fmt.Errorf("fixing ownership of %s: %w", bundle, err)
		}
		if _, err := p.runner.Run(ctx, "chmod", "-R", "755", dst); err != nil {
			return fmt.Errorf("fixing mode of %s: %w", bundle, err)
		}

		log.WithField("kext", bundle).Info("kext installed")
	}
	return nil
}

// ApplyBootArgs writes the boot argument string to firmware NVRAM.
func (p *Patcher) ApplyBootArgs(ctx context.Context, args string) error {
	if _, err := p.runner.Run(ctx, "nvram", "boot-args="+args); err != nil {
		return fmt.Errorf("writing boot-args: %w", err)
	}
	log.WithField("boot_args", args).Info("boot arguments written to NVRAM")
	return nil
}

// RebuildKernelCache invalidates and rebuilds the kernel extension
// cache so newly installed kexts load on next boot.
func (p *Patcher) RebuildKernelCache(ctx context.Context) error {
	if _, err := p.runner.Run(ctx, "touch", p.extDir); err != nil {
		return fmt.Errorf("invalidating extension cache: %w", err)
	}
	if _, err := p.runner.Run(ctx, "kextcache", "-i", "/"); err != nil {
		return fmt.Errorf("rebuilding kernel cache: %w", err)
	}
	log.Info("kernel cache rebuilt")
	return nil
}
