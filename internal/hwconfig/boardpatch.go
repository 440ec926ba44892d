package hwconfig

import (
	"fmt"
	"sort"
)

// BoardPatch is a named binary substitution against a kext executable.
// Find is fixed catalog data; the replacement is runtime input (the
// host's board identifier), validated by the patcher's length rule.
type BoardPatch struct {
	Name       string
	Kext       string
	Executable string
	Find       []byte
	Comment    string
}

// Framebuffer kexts hard-code the board identifiers they attach to, so
// unsupported boards need the stock identifier swapped for theirs.
var boardPatches = map[string]BoardPatch{
	"snb-board-id": {
		Name:       "snb-board-id",
		Kext:       "AppleIntelSNBGraphicsFB.kext",
		Executable: "Contents/MacOS/AppleIntelSNBGraphicsFB",
		Find:       []byte("Mac-94245B3640C91C81"),
		Comment:    "Sandy Bridge framebuffer board ID",
	},
	"snb-board-id-alt": {
		Name:       "snb-board-id-alt",
		Kext:       "AppleIntelSNBGraphicsFB.kext",
		Executable: "Contents/MacOS/AppleIntelSNBGraphicsFB",
		Find:       []byte("Mac-7BA5B2DFE22DDD8C"),
		Comment:    "Sandy Bridge framebuffer board ID, mini variant",
	},
}

// LookupBoardPatch returns the named board patch.
func LookupBoardPatch(name string) (BoardPatch, error) {
	bp, ok := boardPatches[name]
	if !ok {
		return BoardPatch{}, fmt.Errorf("unknown board patch %q", name)
	}
	out := bp
	out.Find = append([]byte(nil), bp.Find...)
	return out, nil
}

// BoardPatchNames returns the catalog keys for CLI listings.
func BoardPatchNames() []string {
	names := make([]string, 0, len(boardPatches))
	for name := range boardPatches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
