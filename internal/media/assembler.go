// Package media assembles bootable installer media. An Assembler walks
// one device through partitioning, mounting, population, and
// finalization; every destructive step sits behind an explicit
// confirmation and an exclusive per-device lock.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ocforge/ocforge/internal/privs"
)

var log = logrus.WithField("service", "media")

// State of the media build. Transitions run strictly forward; Failed is
// reachable from anywhere, and Reset returns any started build to
// Unformatted.
type State string

const (
	StateUnformatted State = "unformatted"
	StatePartitioned State = "partitioned"
	StateMounted     State = "mounted"
	StatePopulated   State = "populated"
	StateFinalized   State = "finalized"
	StateFailed      State = "failed"
)

// Config sets up an Assembler.
type Config struct {
	// Device is the whole-disk node to build on, e.g. /dev/sdb.
	Device string

	// EFISizeMB sizes the EFI system partition. Zero means 200.
	EFISizeMB int

	// MountRoot is where partitions get mounted. Zero means /run/ocforge.
	MountRoot string

	// LockDir holds the per-device lock files. Zero means /run/lock.
	LockDir string

	// Runner executes the disk tools. Zero means the host runner with
	// DefaultToolTimeout.
	Runner Runner
}

// Assembler drives one installer media build.
type Assembler struct {
	device    string
	efiSizeMB int
	mountRoot string
	runner    Runner

	state State
	lock  *os.File
}

// NewAssembler validates the target, takes the per-device lock, and
// returns an assembler in the unformatted state. The privilege token is
// demanded here because everything after Partition writes to raw
// devices.
func NewAssembler(cfg Config, token *privs.Token) (*Assembler, error) {
	if token == nil {
		return nil, fmt.Errorf("media assembly requires privileges, none acquired")
	}

	device := normalizeDevice(cfg.Device)
	if device == "" {
		return nil, fmt.Errorf("no target device given")
	}

	if cfg.EFISizeMB <= 0 {
		cfg.EFISizeMB = 200
	}
	if cfg.MountRoot == "" {
		cfg.MountRoot = "/run/ocforge"
	}
	if cfg.LockDir == "" {
		cfg.LockDir = "/run/lock"
	}
	if cfg.Runner == nil {
		cfg.Runner = NewRunner(DefaultToolTimeout)
	}

	lock, err := acquireLock(cfg.LockDir, device)
	if err != nil {
		return nil, err
	}

	return &Assembler{
		device:    device,
		efiSizeMB: cfg.EFISizeMB,
		mountRoot: cfg.MountRoot,
		runner:    cfg.Runner,
		state:     StateUnformatted,
		lock:      lock,
	}, nil
}

// acquireLock takes an exclusive flock on a per-device lock file so two
// builds cannot race on the same disk.
func acquireLock(dir, device string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := filepath.Join(dir, "ocforge-"+filepath.Base(device)+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("device %s is locked by another build", device)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return f, nil
}

// Close releases the device lock. The build state is left as is.
func (a *Assembler) Close() error {
	if a.lock == nil {
		return nil
	}
	unix.Flock(int(a.lock.Fd()), unix.LOCK_UN)
	err := a.lock.Close()
	a.lock = nil
	return err
}

// State returns the current build state.
func (a *Assembler) State() State {
	return a.state
}

// Device returns the normalized target device path.
func (a *Assembler) Device() string {
	return a.device
}

// ESPPath returns where the EFI system partition is mounted.
func (a *Assembler) ESPPath() string {
	return filepath.Join(a.mountRoot, "esp")
}

// DataPath returns where the install data partition is mounted.
func (a *Assembler) DataPath() string {
	return filepath.Join(a.mountRoot, "data")
}

// Partition wipes the device and writes a fresh GPT with an EFI system
// partition and an HFS+ install data partition. confirmation must spell
// out the target device; it is checked before any tool runs, and a
// mismatch leaves the device untouched.
func (a *Assembler) Partition(ctx context.Context, confirmation string) error {
	if a.state != StateUnformatted {
		return &StateError{Op: "partition", State: a.state}
	}
	if normalizeDevice(confirmation) != a.device {
		return &ConfirmationError{Device: a.device, Confirmation: confirmation}
	}

	log.WithFields(logrus.Fields{
		"device":   a.device,
		"efi_size": fmt.Sprintf("%dMiB", a.efiSizeMB),
	}).Info("partitioning device")

	espEnd := fmt.Sprintf("%dMiB", 1+a.efiSizeMB)
	steps := [][]string{
		{"wipefs", "-a", a.device},
		{"parted", "-s", a.device, "mklabel", "gpt"},
		{"parted", "-s", a.device, "mkpart", "ESP", "fat32", "1MiB", espEnd},
		{"parted", "-s", a.device, "set", "1", "esp", "on"},
		{"parted", "-s", a.device, "mkpart", "Install", "hfs+", espEnd, "100%"},
		{"udevadm", "settle"},
		{"mkfs.vfat", "-F", "32", "-n", "EFI", partitionPath(a.device, 1)},
		{"mkfs.hfsplus", "-v", "Install", partitionPath(a.device, 2)},
	}

	for _, step := range steps {
		if _, err := a.runner.Run(ctx, step[0], step[1:]...); err != nil {
			return a.fail("partitioning", err)
		}
	}

	a.state = StatePartitioned
	return nil
}

// Mount mounts both partitions under the mount root.
func (a *Assembler) Mount(ctx context.Context) error {
	if a.state != StatePartitioned {
		return &StateError{Op: "mount", State: a.state}
	}

	for _, dir := range []string{a.ESPPath(), a.DataPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return a.fail("mounting", fmt.Errorf("failed to create mountpoint: %w", err))
		}
	}

	if _, err := a.runner.Run(ctx, "mount", partitionPath(a.device, 1), a.ESPPath()); err != nil {
		return a.fail("mounting", err)
	}
	if _, err := a.runner.Run(ctx, "mount", partitionPath(a.device, 2), a.DataPath()); err != nil {
		a.runner.Run(ctx, "umount", a.ESPPath())
		return a.fail("mounting", err)
	}

	a.state = StateMounted
	return nil
}

// Finalize flushes buffers and unmounts both partitions. After this the
// device can be pulled.
func (a *Assembler) Finalize(ctx context.Context) error {
	if a.state != StatePopulated {
		return &StateError{Op: "finalize", State: a.state}
	}

	if _, err := a.runner.Run(ctx, "sync"); err != nil {
		return a.fail("finalizing", err)
	}
	if _, err := a.runner.Run(ctx, "umount", a.DataPath()); err != nil {
		return a.fail("finalizing", err)
	}
	if _, err := a.runner.Run(ctx, "umount", a.ESPPath()); err != nil {
		return a.fail("finalizing", err)
	}

	a.state = StateFinalized
	log.WithField("device", a.device).Info("media finalized")
	return nil
}

// Reset abandons the current build: partitions are unmounted
// best-effort and the state returns to unformatted so the build can
// start over. Legal from every state except unformatted, where there is
// nothing to abandon.
func (a *Assembler) Reset(ctx context.Context) error {
	if a.state == StateUnformatted {
		return &StateError{Op: "reset", State: a.state}
	}

	a.runner.Run(ctx, "umount", a.DataPath())
	a.runner.Run(ctx, "umount", a.ESPPath())

	a.state = StateUnformatted
	log.WithField("device", a.device).Info("media state reset")
	return nil
}

func (a *Assembler) fail(op string, err error) error {
	a.state = StateFailed
	log.WithError(err).WithField("device", a.device).Error("media build failed")
	return fmt.Errorf("%s %s: %w", op, a.device, err)
}

// DeviceSize returns the size of a block device in bytes.
func DeviceSize(device string) (int64, error) {
	f, err := os.Open(device)
	if err != nil {
		return 0, fmt.Errorf("failed to open device: %w", err)
	}
	defer f.Close()

	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("failed to read device size: %w", err)
	}
	return int64(size), nil
}

// normalizeDevice maps bare names like sdb onto their /dev path so the
// confirmation check compares like with like.
func normalizeDevice(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "/dev/") {
		s = "/dev/" + s
	}
	return filepath.Clean(s)
}

// partitionPath returns the nth partition node for a device. Devices
// whose name ends in a digit take a p separator:
// /dev/sdb -> /dev/sdb1, /dev/nvme0n1 -> /dev/nvme0n1p1.
func partitionPath(device string, n int) string {
	if device != "" && device[len(device)-1] >= '0' && device[len(device)-1] <= '9' {
		return fmt.Sprintf("%sp%d", device, n)
	}
	return fmt.Sprintf("%s%d", device, n)
}
