package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidName returned when a session file name fails validation
	ErrInvalidName = errors.New("invalid file name")
	// ErrNoEntryPoint returned when none of the known entry points exist
	ErrNoEntryPoint = errors.New("no entry point found")
)

const maxNameLen = 64

// EntryPoints lists the CLI entry point file names in lookup order.
var EntryPoints = []string{"cli.js", "cli.mjs"}

// ConsentMarkerName is the file the file-backed state store uses for the consent record.
const ConsentMarkerName = ".claude-yolo-consent"

var nameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,` + strconv.Itoa(maxNameLen) + `}$`)

// ValidateName returns nil for names that are safe to place directly in the
// working directory, or ErrInvalidName.
// Rules:
// - Only allow ASCII letters, digits, dot, underscore and dash.
// - Max length is 64.
// - Disallow "." and any ".." substring.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidName)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("name too long: %w", ErrInvalidName)
	}
	if name == "." || strings.Contains(name, "..") {
		return fmt.Errorf("name %q is not a plain file name: %w", name, ErrInvalidName)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("name %q contains invalid characters: %w", name, ErrInvalidName)
	}
	return nil
}

// PatchedName returns the derived artifact name for an entry point
// (cli.js -> cli-yolo.js, cli.mjs -> cli-yolo.mjs).
func PatchedName(entry string) string {
	ext := filepath.Ext(entry)
	return strings.TrimSuffix(entry, ext) + "-yolo" + ext
}

// ResolveEntry picks the first entry point from EntryPoints present in dir.
// The result only depends on the directory contents.
func ResolveEntry(dir string) (name, entryPath, patchedPath string, err error) {
	for _, candidate := range EntryPoints {
		p := filepath.Join(dir, candidate)
		fi, serr := os.Stat(p)
		if serr != nil || fi.IsDir() {
			continue
		}
		return candidate, p, filepath.Join(dir, PatchedName(candidate)), nil
	}
	return "", "", "", fmt.Errorf("%s (looked for %s in %s): %w", ErrNoEntryPoint.Error(), strings.Join(EntryPoints, ", "), dir, ErrNoEntryPoint)
}

// SessionFile validates name and joins it onto workDir.
func SessionFile(workDir, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return SafeJoin(workDir, name)
}

// SafeJoin joins root with rel and ensures the resulting path is inside root.
// Returns an error if the result would escape root or if rel is absolute.
func SafeJoin(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("empty root")
	}
	// If rel is absolute, joining will return rel; treat absolute rel as disallowed.
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("relative path expected, got absolute: %s", rel)
	}
	cleaned := filepath.Clean(filepath.Join(root, rel))
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absCleaned, err := filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}
	relToRoot, err := filepath.Rel(absRoot, absCleaned)
	if err != nil {
		return "", err
	}
	if relToRoot == ".." || strings.HasPrefix(filepath.ToSlash(relToRoot), "../") {
		return "", fmt.Errorf("path escapes root: %s", rel)
	}
	return absCleaned, nil
}
