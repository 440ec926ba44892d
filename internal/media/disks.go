package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Disk is a candidate target device.
type Disk struct {
	Name      string
	Path      string
	SizeBytes int64
	Model     string
	Transport string
	Removable bool

	// System is set when the disk carries a filesystem the running OS
	// depends on. System disks are never offered as targets.
	System bool
}

// HumanSize renders the disk size for listings.
func (d Disk) HumanSize() string {
	return humanize.Bytes(uint64(d.SizeBytes))
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Size       int64         `json:"size"`
	Model      *string       `json:"model"`
	Tran       *string       `json:"tran"`
	Type       string        `json:"type"`
	RM         bool          `json:"rm"`
	Mountpoint *string       `json:"mountpoint"`
	Children   []lsblkDevice `json:"children"`
}

// ListDisks enumerates whole disks via lsblk. Disks holding a mounted
// system filesystem are flagged, not dropped, so listings can show why a
// device is off limits.
func ListDisks(ctx context.Context, r Runner) ([]Disk, error) {
	out, err := r.Run(ctx, "lsblk", "-J", "-b", "-o", "NAME,PATH,SIZE,MODEL,TRAN,TYPE,RM,MOUNTPOINT")
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	var result struct {
		Blockdevices []lsblkDevice `json:"blockdevices"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output: %w", err)
	}

	var disks []Disk
	for _, bd := range result.Blockdevices {
		if bd.Type != "disk" {
			continue
		}

		disk := Disk{
			Name:      bd.Name,
			Path:      bd.Path,
			SizeBytes: bd.Size,
			Removable: bd.RM,
			System:    hasSystemMount(bd),
		}
		if bd.Model != nil {
			disk.Model = strings.TrimSpace(*bd.Model)
		}
		if bd.Tran != nil {
			disk.Transport = strings.TrimSpace(*bd.Tran)
		}
		if disk.Path == "" {
			disk.Path = "/dev/" + disk.Name
		}
		disks = append(disks, disk)
	}

	return disks, nil
}

// Candidates filters a listing down to disks safe to offer as targets.
func Candidates(disks []Disk) []Disk {
	var out []Disk
	for _, d := range disks {
		if !d.System {
			out = append(out, d)
		}
	}
	return out
}

// hasSystemMount walks a device tree looking for mountpoints the running
// OS lives on. USB media auto-mounted under /media or /run/media stay
// eligible.
func hasSystemMount(dev lsblkDevice) bool {
	if dev.Mountpoint != nil && isSystemMountpoint(*dev.Mountpoint) {
		return true
	}
	for _, child := range dev.Children {
		if hasSystemMount(child) {
			return true
		}
	}
	return false
}

func isSystemMountpoint(mp string) bool {
	switch {
	case mp == "/" || mp == "[SWAP]":
		return true
	case strings.HasPrefix(mp, "/boot"):
		return true
	case strings.HasPrefix(mp, "/usr"), strings.HasPrefix(mp, "/var"), strings.HasPrefix(mp, "/home"):
		return true
	}
	return false
}
