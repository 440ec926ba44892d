// Package payload stages installer payloads onto build media. A payload
// is either a directory tree copied as-is or an ISO9660 image whose
// contents are extracted.
package payload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
	"github.com/sirupsen/logrus"

	"github.com/ocforge/ocforge/internal/fsutil"
)

var log = logrus.WithField("service", "payload")

// Kind discriminates how a payload path will be staged.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindImage     Kind = "image"
)

// Source is a resolved payload location.
type Source struct {
	Path string
	Kind Kind
}

// Resolve inspects path and decides how its contents will be staged.
// Directories are copied, .iso files are extracted. Anything else is an
// error.
func Resolve(path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat payload: %w", err)
	}

	if info.IsDir() {
		return &Source{Path: path, Kind: KindDirectory}, nil
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("payload %s is neither a directory nor a regular file", path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".iso" {
		return nil, fmt.Errorf("payload %s: unsupported file type %q, want a directory or .iso image", path, ext)
	}
	return &Source{Path: path, Kind: KindImage}, nil
}

// Size reports the bytes the payload occupies at its source. For images
// this is the image size, not the extracted size.
func (s *Source) Size() (int64, error) {
	if s.Kind == KindDirectory {
		return fsutil.DirSize(s.Path)
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat payload image: %w", err)
	}
	return info.Size(), nil
}

// Stage places the payload contents under dest, creating it if needed.
func (s *Source) Stage(dest string) error {
	log.WithFields(logrus.Fields{
		"payload": s.Path,
		"kind":    string(s.Kind),
		"dest":    dest,
	}).Info("staging payload")

	switch s.Kind {
	case KindDirectory:
		return fsutil.CopyDir(s.Path, dest)
	case KindImage:
		return extractImage(s.Path, dest)
	}
	return fmt.Errorf("unknown payload kind %q", s.Kind)
}

// extractImage unpacks an ISO9660 image into dest.
func extractImage(imagePath, dest string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := iso9660.OpenImage(f)
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}
	root, err := img.RootDir()
	if err != nil {
		return fmt.Errorf("failed to read image root: %w", err)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	return extractDir(root, dest)
}

func extractDir(dir *iso9660.File, dest string) error {
	children, err := dir.GetChildren()
	if err != nil {
		return fmt.Errorf("failed to list image directory: %w", err)
	}

	for _, child := range children {
		target := filepath.Join(dest, child.Name())

		if child.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			if err := extractDir(child, target); err != nil {
				return err
			}
			continue
		}

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", target, err)
		}
		if _, err := io.Copy(out, child.Reader()); err != nil {
			out.Close()
			return fmt.Errorf("failed to extract %s: %w", target, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("failed to finalize %s: %w", target, err)
		}
	}
	return nil
}
