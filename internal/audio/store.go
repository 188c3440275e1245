// Package audio persists uploaded voice captures on local disk.
package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultExt = ".webm"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store writes enrollment and login captures under a single upload
// directory. Enrollment files are keyed by email so a re-upload for the same
// address overwrites instead of accumulating; login captures are scratch
// files the caller must remove.
type Store struct {
	dir string
}

// NewStore creates the upload directory if needed and returns a Store.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("empty upload directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the upload directory path.
func (s *Store) Dir() string {
	return s.dir
}

// SaveEnrollment durably writes the enrollment capture for email and returns
// its path. The name is deterministic, so repeated signups for one address
// overwrite the previous file.
func (s *Store) SaveEnrollment(email, uploadName string, r io.Reader) (string, error) {
	name := safeFilename(email) + extFor(uploadName)
	path := filepath.Join(s.dir, name)
	if err := writeFile(path, r); err != nil {
		return "", err
	}
	return path, nil
}

// SaveTemp writes a login capture to a uniquely named scratch file and
// returns its path. Callers must Remove the file when done.
func (s *Store) SaveTemp(uploadName string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(s.dir, "login-*"+extFor(uploadName))
	if err != nil {
		return "", fmt.Errorf("create temp capture: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp capture: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp capture: %w", err)
	}
	return f.Name(), nil
}

// Remove deletes a stored capture, ignoring files that are already gone.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write capture file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close capture file: %w", err)
	}
	return nil
}

// safeFilename flattens an email to a filesystem-safe name.
func safeFilename(email string) string {
	name := strings.ReplaceAll(strings.TrimSpace(email), "@", "_at_")
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" {
		name = "capture"
	}
	return name
}

// extFor keeps the uploaded extension when it is a plausible one and falls
// back to the browser capture default.
func extFor(uploadName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(uploadName)))
	if len(ext) < 2 || len(ext) > 8 || unsafeChars.MatchString(ext[1:]) {
		return defaultExt
	}
	return ext
}
