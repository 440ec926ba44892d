package hwprofile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default locations for a pinned profile file, tried in order when no
// explicit path is given.
func defaultCandidates() []string {
	return []string{
		"/etc/ocforge/profile.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/ocforge/profile.yaml"),
		"profile.yaml",
	}
}

// LoadFile reads a profile from a YAML file. Support classification is
// re-derived on load so a hand-edited file cannot claim support for
// hardware the tables reject.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	p.Source = "file"

	for i := range p.GPUs {
		p.GPUs[i].Supported = false
		classifyGPU(&p.GPUs[i])
	}
	return &p, nil
}

// Save writes the profile as YAML.
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	return nil
}

// Resolve returns the profile to operate on. An explicit path wins; with
// an empty path the default candidate files are tried, and if none exist
// the running host is probed.
func Resolve(path string) (*Profile, error) {
	if path != "" {
		return LoadFile(path)
	}
	for _, c := range defaultCandidates() {
		if _, err := os.Stat(c); err == nil {
			log.WithField("path", c).Debug("using pinned profile file")
			return LoadFile(c)
		}
	}
	return Probe()
}
