package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/logging"
)

var ErrPatch = errors.New("patch failed")

type RuleResult struct {
	Name  string `json:"name" yaml:"name"`
	Hits  int    `json:"hits" yaml:"hits"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

type Report struct {
	Source string       `json:"source" yaml:"source"`
	Output string       `json:"output" yaml:"output"`
	Rules  []RuleResult `json:"rules" yaml:"rules"`
}

type Engine struct {
	rules []Rule
	log   *logging.Logger
}

func NewEngine(rules []Rule, log *logging.Logger) *Engine {
	return &Engine{rules: rules, log: log}
}

// Transform applies every rule in order, each on the previous rule's output.
// Unmatched or failing rules leave the text as it was.
func (e *Engine) Transform(src string) (string, []RuleResult) {
	results := make([]RuleResult, 0, len(e.rules))
	for _, r := range e.rules {
		out, n, err := r.Apply(src)
		res := RuleResult{Name: r.Name(), Hits: n}
		switch {
		case err != nil:
			res.Error = err.Error()
			e.log.Debugf("patch rule %s skipped: %v", r.Name(), err)
		case n == 0:
			e.log.Debugf("patch rule %s: no match", r.Name())
		default:
			src = out
			e.log.Debugf("patch rule %s: replaced %d occurrence(s)", r.Name(), n)
		}
		results = append(results, res)
	}
	return src, results
}

// Patch reads the installation entry point and writes the transformed text to
// its patched path, replacing any previous artifact. The entry point itself
// is only read.
func (e *Engine) Patch(inst api.Installation) (Report, error) {
	rep := Report{Source: inst.EntryPoint, Output: inst.PatchedPath}
	if inst.EntryPoint == "" || inst.PatchedPath == "" {
		return rep, fmt.Errorf("%w: installation has no entry point", ErrPatch)
	}
	if filepath.Clean(inst.EntryPoint) == filepath.Clean(inst.PatchedPath) {
		return rep, fmt.Errorf("%w: output would overwrite %s", ErrPatch, inst.EntryPoint)
	}
	fi, err := os.Stat(inst.EntryPoint)
	if err != nil {
		return rep, fmt.Errorf("%w: %v", ErrPatch, err)
	}
	src, err := os.ReadFile(inst.EntryPoint)
	if err != nil {
		return rep, fmt.Errorf("%w: read %s: %v", ErrPatch, inst.EntryPoint, err)
	}

	out, results := e.Transform(string(src))
	rep.Rules = results

	if err := writeAtomic(inst.PatchedPath, []byte(out), fi.Mode().Perm()); err != nil {
		return rep, fmt.Errorf("%w: write %s: %v", ErrPatch, inst.PatchedPath, err)
	}
	e.log.Debugf("created patched CLI at %s", inst.PatchedPath)
	return rep, nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
