// Package libmerge reconciles versioned library directories. Graphics
// driver payloads ship compiler libraries in directories named by build
// number (31001.600, 31001.669, ...); when the version a driver expects
// is missing but a sibling from the same release train is present, the
// sibling's contents satisfy it.
package libmerge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ocforge/ocforge/internal/fsutil"
)

var log = logrus.WithField("service", "libmerge")

// Outcome of a reconcile attempt.
type Outcome string

const (
	// OutcomeAlreadySatisfied means the expected directory exists.
	OutcomeAlreadySatisfied Outcome = "already_satisfied"

	// OutcomeMerged means a sibling's contents were copied into a newly
	// created expected directory.
	OutcomeMerged Outcome = "merged"

	// OutcomeNotFound means no sibling shares the release prefix. Not an
	// error; the caller decides whether the gap matters.
	OutcomeNotFound Outcome = "not_found"
)

// Result describes what Reconcile did.
type Result struct {
	Outcome  Outcome
	Expected string
	Source   string
}

// Reconcile ensures baseDir/expected exists. When it does not, the
// newest sibling directory sharing the numeric release prefix (the
// segment before the first dot) donates its contents via a
// content-preserving copy; the donor itself is never renamed or removed.
// No donor means OutcomeNotFound with a nil error.
func Reconcile(baseDir, expected string) (Result, error) {
	res := Result{Expected: filepath.Join(baseDir, expected)}

	if expected == "" || strings.ContainsRune(expected, os.PathSeparator) {
		return res, fmt.Errorf("invalid expected directory name %q", expected)
	}

	if info, err := os.Stat(res.Expected); err == nil {
		if !info.IsDir() {
			return res, fmt.Errorf("%s exists but is not a directory", res.Expected)
		}
		res.Outcome = OutcomeAlreadySatisfied
		return res, nil
	} else if !os.IsNotExist(err) {
		return res, fmt.Errorf("stat %s: %w", res.Expected, err)
	}

	donor, err := findDonor(baseDir, expected)
	if err != nil {
		return res, err
	}
	if donor == "" {
		res.Outcome = OutcomeNotFound
		log.WithFields(logrus.Fields{
			"base":     baseDir,
			"expected": expected,
		}).Debug("no sibling shares the release prefix")
		return res, nil
	}

	res.Source = filepath.Join(baseDir, donor)
	if err := fsutil.CopyDir(res.Source, res.Expected); err != nil {
		return res, fmt.Errorf("merging %s into %s: %w", donor, expected, err)
	}

	res.Outcome = OutcomeMerged
	log.WithFields(logrus.Fields{
		"source":   donor,
		"expected": expected,
	}).Info("merged versioned library directory")
	return res, nil
}

// findDonor picks the lexically greatest sibling directory sharing
// expected's release prefix. Greatest wins because later builds of the
// same train carry the most complete library set. A base directory that
// does not exist has no donor; payloads that ship no versioned
// libraries at all are left as they are.
func findDonor(baseDir, expected string) (string, error) {
	entries, err := os.ReadDir(baseDir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", baseDir, err)
	}

	prefix := releasePrefix(expected)
	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == expected {
			continue
		}
		if releasePrefix(name) == prefix {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}

// releasePrefix returns the segment before the first dot: 31001.600 and
// 31001.669 share prefix 31001.
func releasePrefix(name string) string {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return name
}
