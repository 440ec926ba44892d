// Package binpatch performs byte-exact substitutions inside binary files,
// typically kext executables. The cardinal rule: a replacement may never
// be longer than the bytes it replaces. Executables are parsed by offset,
// so growing them corrupts every reference after the patch site; shorter
// replacements are zero-padded to keep the file size constant.
package binpatch

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "binpatch")

// Outcome of one patch attempt.
type Outcome string

const (
	// OutcomeApplied means the target bytes were found and replaced.
	OutcomeApplied Outcome = "applied"

	// OutcomeNotFound means the target bytes are absent. Not an error:
	// a second run over an already patched file lands here.
	OutcomeNotFound Outcome = "not_found"
)

// Result describes what a patch attempt did.
type Result struct {
	Outcome Outcome
	File    string

	// Offset of the replaced bytes. Valid only when applied.
	Offset int64
}

// TargetTooLongError reports a replacement longer than its target. The
// file is guaranteed untouched.
type TargetTooLongError struct {
	File           string
	TargetLen      int
	ReplacementLen int
}

func (e *TargetTooLongError) Error() string {
	return fmt.Sprintf("replacement (%d bytes) longer than target (%d bytes) in %s: refusing to grow the binary",
		e.ReplacementLen, e.TargetLen, e.File)
}

// Patch is a named substitution.
type Patch struct {
	Name    string
	Find    []byte
	Replace []byte
}

// Validate rejects patches that could never apply sensibly. The length
// rule is checked again at apply time with the file attached to the
// error.
func (p Patch) Validate() error {
	if len(p.Find) == 0 {
		return fmt.Errorf("patch %s: empty target", p.Name)
	}
	if len(p.Replace) == 0 {
		return fmt.Errorf("patch %s: empty replacement", p.Name)
	}
	if len(p.Replace) > len(p.Find) {
		return &TargetTooLongError{TargetLen: len(p.Find), ReplacementLen: len(p.Replace)}
	}
	if bytes.Equal(p.Find, pad(p.Replace, len(p.Find))) {
		return fmt.Errorf("patch %s: replacement equals target", p.Name)
	}
	return nil
}

// Apply replaces the first occurrence of find in the file at path with
// replace, zero-padded to the length of find. The file keeps its exact
// size. An absent target returns OutcomeNotFound with a nil error; only
// I/O problems and the length rule are errors, and in both cases the
// file is left unmodified.
func Apply(path string, find, replace []byte) (Result, error) {
	res := Result{File: path}

	if len(find) == 0 {
		return res, fmt.Errorf("empty patch target for %s", path)
	}
	if len(replace) > len(find) {
		return res, &TargetTooLongError{
			File:           path,
			TargetLen:      len(find),
			ReplacementLen: len(replace),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("reading %s: %w", path, err)
	}

	idx := bytes.Index(data, find)
	if idx < 0 {
		res.Outcome = OutcomeNotFound
		log.WithField("file", path).Debug("patch target not present")
		return res, nil
	}

	copy(data[idx:idx+len(find)], pad(replace, len(find)))

	if err := os.WriteFile(path, data, info.Mode().Perm()); err != nil {
		return res, fmt.Errorf("writing %s: %w", path, err)
	}

	res.Outcome = OutcomeApplied
	res.Offset = int64(idx)
	log.WithFields(logrus.Fields{
		"file":   path,
		"offset": idx,
		"bytes":  len(find),
	}).Debug("patch applied")
	return res, nil
}

// ApplyPatch validates p and applies it.
func ApplyPatch(path string, p Patch) (Result, error) {
	if err := p.Validate(); err != nil {
		if tooLong, ok := err.(*TargetTooLongError); ok {
			tooLong.File = path
		}
		return Result{File: path}, err
	}
	return Apply(path, p.Find, p.Replace)
}

// pad extends b with zero bytes to length n. b is never truncated; the
// caller has already enforced len(b) <= n.
func pad(b []byte, n int) []byte {
	if len(b) == n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
