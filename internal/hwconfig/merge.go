package hwconfig

// Merged is the combination of several catalog profiles, ready for the
// generator.
type Merged struct {
	Kexts    []string
	BootArgs []string
	SMBIOS   string
	Patches  []TreePatch
}

// Merge combines profiles in the order given. Kext lists and boot
// arguments are set unions keeping first-seen order, the first non-empty
// SMBIOS identifier wins, and tree patches concatenate (a later patch to
// the same path overwrites when applied).
func Merge(profiles []Profile) Merged {
	var m Merged
	seenKext := make(map[string]bool)
	seenArg := make(map[string]bool)

	for _, p := range profiles {
		for _, k := range p.Kexts {
			if !seenKext[k] {
				seenKext[k] = true
				m.Kexts = append(m.Kexts, k)
			}
		}
		for _, a := range p.BootArgs {
			if !seenArg[a] {
				seenArg[a] = true
				m.BootArgs = append(m.BootArgs, a)
			}
		}
		if m.SMBIOS == "" && p.SMBIOS != "" {
			m.SMBIOS = p.SMBIOS
		}
		m.Patches = append(m.Patches, p.Patches...)
	}
	return m
}

// Resolve looks up every name and merges the results. The first unknown
// name aborts the whole resolution.
func Resolve(names []string) (Merged, error) {
	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		p, err := Lookup(name)
		if err != nil {
			return Merged{}, err
		}
		profiles = append(profiles, p)
	}
	return Merge(profiles), nil
}
