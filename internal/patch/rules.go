package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

// Rule is one textual transformation. Apply returns the rewritten text and the
// number of replacements made. A non-nil error means the rule could not be
// applied safely; src must then be returned unchanged.
type Rule interface {
	Name() string
	Apply(src string) (string, int, error)
}

// literalRule replaces every occurrence of old with new.
type literalRule struct {
	name     string
	old, new string
}

func (r literalRule) Name() string { return r.name }

func (r literalRule) Apply(src string) (string, int, error) {
	n := strings.Count(src, r.old)
	if n == 0 {
		return src, 0, nil
	}
	return strings.ReplaceAll(src, r.old, r.new), n, nil
}

// regexpRule replaces every match of re with a fixed literal.
type regexpRule struct {
	name string
	re   *regexp.Regexp
	repl string
}

func (r regexpRule) Name() string { return r.name }

func (r regexpRule) Apply(src string) (string, int, error) {
	n := len(r.re.FindAllStringIndex(src, -1))
	if n == 0 {
		return src, 0, nil
	}
	return r.re.ReplaceAllLiteralString(src, r.repl), n, nil
}

// decorateRule rewrites the first occurrence of a JSON string array literal,
// appending a randomly chosen suffix to every element.
type decorateRule struct {
	name     string
	array    string
	suffixes []string
	pick     func(n int) int
}

func (r decorateRule) Name() string { return r.name }

func (r decorateRule) Apply(src string) (string, int, error) {
	idx := strings.Index(src, r.array)
	if idx < 0 {
		return src, 0, nil
	}
	decorated, err := r.decorate()
	if err != nil {
		return src, 0, err
	}
	return src[:idx] + decorated + src[idx+len(r.array):], 1, nil
}

func (r decorateRule) decorate() (string, error) {
	if len(r.suffixes) == 0 {
		return "", fmt.Errorf("%s: empty suffix pool", r.name)
	}
	var words []string
	if err := json.Unmarshal([]byte(r.array), &words); err != nil {
		return "", fmt.Errorf("%s: decode array: %w", r.name, err)
	}
	pick := r.pick
	if pick == nil {
		pick = rand.Intn
	}
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w + r.suffixes[pick(len(r.suffixes))]
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return "", fmt.Errorf("%s: encode array: %w", r.name, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiBold   = "\x1b[1m"
	ansiReset  = "\x1b[0m"
)

// Suffixes is the fixed pool loading verbs are decorated from.
var Suffixes = []string{
	" " + ansiRed + "(safety's off, hold on tight)" + ansiReset,
	" " + ansiYellow + "(all gas, no brakes, lfg)" + ansiReset,
	" " + ansiBold + "\x1b[35m(yolo mode engaged)" + ansiReset,
	" " + ansiCyan + "(dangerous mode! I guess you can just do things)" + ansiReset,
}

// LoadingVerbs is the status-label array shipped in the CLI bundle.
const LoadingVerbs = `["Accomplishing","Actioning","Actualizing","Baking","Brewing","Calculating","Cerebrating","Churning","Clauding","Coalescing","Cogitating","Computing","Conjuring","Considering","Cooking","Crafting","Creating","Crunching","Deliberating","Determining","Doing","Effecting","Finagling","Forging","Forming","Generating","Hatching","Herding","Honking","Hustling","Ideating","Inferring","Manifesting","Marinating","Moseying","Mulling","Mustering","Musing","Noodling","Percolating","Pondering","Processing","Puttering","Reticulating","Ruminating","Schlepping","Shucking","Simmering","Smooshing","Spinning","Stewing","Synthesizing","Thinking","Transmuting","Vibing","Working"]`

// DefaultRules returns the rule set in application order. pick chooses a
// suffix index in [0,n); nil uses math/rand.
func DefaultRules(pick func(n int) int) []Rule {
	return []Rule{
		literalRule{name: "punycode-import", old: `"punycode"`, new: `"punycode/"`},
		regexpRule{name: "is-docker", re: regexp.MustCompile(`[a-zA-Z0-9_]*\.getIsDocker\(\)`), repl: "true"},
		regexpRule{name: "has-internet", re: regexp.MustCompile(`[a-zA-Z0-9_]*\.hasInternetAccess\(\)`), repl: "false"},
		decorateRule{name: "loading-verbs", array: LoadingVerbs, suffixes: Suffixes, pick: pick},
	}
}
