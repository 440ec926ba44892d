package media

import (
	"context"
	"testing"
)

const lsblkFixture = `{
   "blockdevices": [
      {"name":"nvme0n1","path":"/dev/nvme0n1","size":1024209543168,"model":"Samsung SSD 980 PRO 1TB","tran":"nvme","type":"disk","rm":false,"mountpoint":null,
       "children":[
          {"name":"nvme0n1p1","path":"/dev/nvme0n1p1","size":536870912,"model":null,"tran":null,"type":"part","rm":false,"mountpoint":"/boot/efi"},
          {"name":"nvme0n1p2","path":"/dev/nvme0n1p2","size":1023671123968,"model":null,"tran":null,"type":"part","rm":false,"mountpoint":"/"}
       ]},
      {"name":"sdb","path":"/dev/sdb","size":15482880000,"model":"SanDisk Ultra","tran":"usb","type":"disk","rm":true,"mountpoint":null},
      {"name":"sdc","path":"/dev/sdc","size":2000398934016,"model":"WDC WD20EZRZ","tran":"sata","type":"disk","rm":false,"mountpoint":null,
       "children":[
          {"name":"sdc1","path":"/dev/sdc1","size":2000397868544,"model":null,"tran":null,"type":"part","rm":false,"mountpoint":"/media/archive"}
       ]},
      {"name":"loop0","path":"/dev/loop0","size":4096,"model":null,"tran":null,"type":"loop","rm":false,"mountpoint":"/snap/core"}
   ]
}`

func TestListDisks(t *testing.T) {
	runner := &fakeRunner{outputs: map[string][]byte{"lsblk": []byte(lsblkFixture)}}

	disks, err := ListDisks(context.Background(), runner)
	if err != nil {
		t.Fatalf("ListDisks: %v", err)
	}
	if len(disks) != 3 {
		t.Fatalf("disks = %d, want 3 (loop devices excluded)", len(disks))
	}

	byName := make(map[string]Disk)
	for _, d := range disks {
		byName[d.Name] = d
	}

	system := byName["nvme0n1"]
	if !system.System {
		t.Error("disk holding / not flagged as system")
	}
	if system.SizeBytes != 1024209543168 {
		t.Errorf("nvme0n1 size = %d", system.SizeBytes)
	}

	stick := byName["sdb"]
	if stick.System {
		t.Error("clean USB stick flagged as system")
	}
	if !stick.Removable || stick.Transport != "usb" {
		t.Errorf("sdb = %+v", stick)
	}
	if stick.Model != "SanDisk Ultra" {
		t.Errorf("sdb model = %q", stick.Model)
	}

	// A data disk mounted under /media stays eligible.
	if byName["sdc"].System {
		t.Error("disk mounted under /media flagged as system")
	}
}

func TestCandidatesDropSystemDisks(t *testing.T) {
	runner := &fakeRunner{outputs: map[string][]byte{"lsblk": []byte(lsblkFixture)}}

	disks, err := ListDisks(context.Background(), runner)
	if err != nil {
		t.Fatal(err)
	}

	candidates := Candidates(disks)
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(candidates))
	}
	for _, d := range candidates {
		if d.Name == "nvme0n1" {
			t.Error("system disk offered as candidate")
		}
	}
}

func TestHumanSize(t *testing.T) {
	d := Disk{SizeBytes: 512000000}
	if got := d.HumanSize(); got != "512 MB" {
		t.Errorf("HumanSize = %q, want 512 MB", got)
	}
}

func TestListDisksBadJSON(t *testing.T) {
	runner := &fakeRunner{outputs: map[string][]byte{"lsblk": []byte("not json")}}

	if _, err := ListDisks(context.Background(), runner); err == nil {
		t.Error("ListDisks accepted malformed output")
	}
}
