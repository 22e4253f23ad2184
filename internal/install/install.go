// Package install locates the Claude CLI installation to wrap.
package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/paths"
	"github.com/throw-if-null/yolo/internal/runner"
)

var ErrInstallationNotFound = errors.New("claude installation not found")

const (
	SourceConfig = "config"
	SourceGlobal = "npm-global"
	SourceLocal  = "local"
)

type Resolver struct {
	Runner runner.CommandRunner
	// Package is the npm package name, e.g. @anthropic-ai/claude-code.
	Package string
	// Override, when set, is the only directory considered.
	Override string
	// WorkDir is where the node_modules walk-up starts.
	WorkDir string
	Log     *logging.Logger
}

type candidate struct {
	dir    string
	source string
}

// Resolve returns the first candidate directory that holds an entry point:
// the configured override, then the global npm root, then the nearest
// node_modules above WorkDir.
func (r *Resolver) Resolve(ctx context.Context) (api.Installation, error) {
	var tried []string
	for _, c := range r.candidates(ctx) {
		tried = append(tried, c.dir)
		name, entry, patched, err := paths.ResolveEntry(c.dir)
		if err != nil {
			r.Log.Debugf("install: %s: %v", c.source, err)
			continue
		}
		r.Log.Debugf("install: found %s at %s (%s)", name, c.dir, c.source)
		return api.Installation{
			Dir:         c.dir,
			EntryName:   name,
			EntryPoint:  entry,
			PatchedPath: patched,
			Source:      c.source,
		}, nil
	}
	if len(tried) == 0 {
		return api.Installation{}, ErrInstallationNotFound
	}
	return api.Installation{}, fmt.Errorf("%w (looked in %s)", ErrInstallationNotFound, strings.Join(tried, ", "))
}

func (r *Resolver) candidates(ctx context.Context) []candidate {
	if r.Override != "" {
		return []candidate{{dir: r.Override, source: SourceConfig}}
	}
	pkgPath := filepath.FromSlash(r.Package)

	var out []candidate
	if r.Runner != nil {
		root, err := runner.Output(ctx, r.Runner, "", "npm", "-g", "root")
		if err != nil {
			r.Log.Debugf("install: npm -g root: %v", err)
		} else if root != "" {
			dir := filepath.Join(root, pkgPath)
			if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
				out = append(out, candidate{dir: dir, source: SourceGlobal})
			}
		}
	}
	if nm := findNodeModules(r.WorkDir); nm != "" {
		out = append(out, candidate{dir: filepath.Join(nm, pkgPath), source: SourceLocal})
	}
	return out
}

// findNodeModules walks up from start to the nearest directory containing
// node_modules and returns that node_modules path.
func findNodeModules(start string) string {
	if start == "" {
		return ""
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		nm := filepath.Join(dir, "node_modules")
		if fi, err := os.Stat(nm); err == nil && fi.IsDir() {
			return nm
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// PackageVersion reads the "version" field of dir/package.json.
func PackageVersion(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", err
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(b, &pkg); err != nil {
		return "", fmt.Errorf("parse package.json: %w", err)
	}
	if pkg.Version == "" {
		return "", errors.New("package.json has no version")
	}
	return pkg.Version, nil
}
