package hwprofile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Filesystem roots, package variables so tests can point the probe at a
// fixture tree.
var (
	sysRoot  = "/sys"
	procRoot = "/proc"
)

// Probe builds a Profile from the running host using sysfs and procfs
// only. It spawns no processes and never touches block devices, so it is
// safe to run on any box. Missing files degrade individual fields, not
// the whole probe.
func Probe() (*Profile, error) {
	p := &Profile{Source: "probe"}

	cpu, err := collectCPU()
	if err != nil {
		return nil, fmt.Errorf("reading cpuinfo: %w", err)
	}
	p.CPU = cpu
	p.RAMBytes = collectMemTotal()
	p.Board = collectBoard()
	p.GPUs = collectGPUs()

	for i := range p.GPUs {
		classifyGPU(&p.GPUs[i])
	}

	log.WithField("gpus", len(p.GPUs)).Debug("host probe complete")
	return p, nil
}

func collectCPU() (CPU, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, "cpuinfo"))
	if err != nil {
		return CPU{}, err
	}
	return parseCPUInfo(string(data)), nil
}

// parseCPUInfo reads the first processor block of /proc/cpuinfo. Threads
// is the number of processor entries across the whole file.
func parseCPUInfo(s string) CPU {
	var cpu CPU
	threads := 0
	for _, line := range strings.Split(s, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if key == "processor" {
			threads++
			if threads > 1 {
				// Identification fields repeat per processor; the
				// first block is enough.
				continue
			}
		}
		if threads > 1 {
			continue
		}

		switch key {
		case "vendor_id":
			cpu.Vendor = value
		case "model name":
			cpu.Brand = value
		case "cpu family":
			cpu.Family, _ = strconv.Atoi(value)
		case "model":
			cpu.Model, _ = strconv.Atoi(value)
		case "stepping":
			cpu.Stepping, _ = strconv.Atoi(value)
		case "cpu cores":
			cpu.Cores, _ = strconv.Atoi(value)
		case "siblings":
			if cpu.Threads == 0 {
				cpu.Threads, _ = strconv.Atoi(value)
			}
		}
	}
	if threads > cpu.Threads {
		cpu.Threads = threads
	}
	return cpu
}

func collectMemTotal() uint64 {
	data, err := os.ReadFile(filepath.Join(procRoot, "meminfo"))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

func collectBoard() Board {
	var board Board
	dmiPath := filepath.Join(sysRoot, "class/dmi/id")
	if data, err := os.ReadFile(filepath.Join(dmiPath, "board_vendor")); err == nil {
		board.Vendor = strings.TrimSpace(string(data))
	}
	if data, err := os.ReadFile(filepath.Join(dmiPath, "board_name")); err == nil {
		board.Name = strings.TrimSpace(string(data))
	}
	return board
}

// collectGPUs scans PCI devices for display controllers (class 0x03xxxx).
func collectGPUs() []GPU {
	base := filepath.Join(sysRoot, "bus/pci/devices")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}

	var gpus []GPU
	for _, entry := range entries {
		devDir := filepath.Join(base, entry.Name())

		class := readSysfsString(filepath.Join(devDir, "class"))
		if !strings.HasPrefix(class, "0x03") {
			continue
		}

		gpu := GPU{
			VendorID: readSysfsHex16(filepath.Join(devDir, "vendor")),
			DeviceID: readSysfsHex16(filepath.Join(devDir, "device")),
			PCIPath:  devicePathFromSysfs(devDir),
			BootVGA:  readSysfsString(filepath.Join(devDir, "boot_vga")) == "1",
		}

		// Only amdgpu exposes this; absence means unknown, not zero.
		if data, err := os.ReadFile(filepath.Join(devDir, "mem_info_vram_total")); err == nil {
			if vram, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64); err == nil {
				gpu.VRAMBytes = &vram
			}
		}

		gpus = append(gpus, gpu)
	}
	return gpus
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readSysfsHex16(path string) uint16 {
	s := strings.TrimPrefix(readSysfsString(path), "0x")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}

// devicePathFromSysfs renders the firmware device path for a PCI device
// by walking its resolved sysfs path. Each bus:dev.fn component under the
// root complex contributes one Pci(dev,fn) segment, so devices behind
// bridges come out as e.g. PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0).
func devicePathFromSysfs(devDir string) string {
	real, err := filepath.EvalSymlinks(devDir)
	if err != nil {
		return ""
	}

	root := ""
	var segs []string
	for _, part := range strings.Split(real, "/") {
		if strings.HasPrefix(part, "pci") && strings.Contains(part, ":") {
			// pci0000:00 names the root complex.
			busStr := part[strings.Index(part, ":")+1:]
			if n, err := strconv.ParseUint(busStr, 16, 8); err == nil {
				root = fmt.Sprintf("PciRoot(0x%X)", n)
				segs = segs[:0]
			}
			continue
		}
		if dev, fn, ok := parseBDF(part); ok {
			segs = append(segs, fmt.Sprintf("Pci(0x%X,0x%X)", dev, fn))
		}
	}
	if root == "" || len(segs) == 0 {
		return ""
	}
	return root + "/" + strings.Join(segs, "/")
}

// parseBDF splits a sysfs PCI address like 0000:01:00.0 into device and
// function numbers.
func parseBDF(s string) (dev, fn uint64, ok bool) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return 0, 0, false
	}
	devFn := strings.Split(fields[2], ".")
	if len(devFn) != 2 {
		return 0, 0, false
	}
	dev, err := strconv.ParseUint(devFn[0], 16, 8)
	if err != nil {
		return 0, 0, false
	}
	fn, err = strconv.ParseUint(devFn[1], 16, 8)
	if err != nil {
		return 0, 0, false
	}
	return dev, fn, true
}
