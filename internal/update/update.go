// Package update compares the wrapped installation with the latest version
// published on the npm registry and optionally installs the newer one.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/runner"
)

type Checker struct {
	RegistryURL string
	Package     string
	Timeout     time.Duration
	// Install runs npm install -g when a newer version is published.
	Install bool
	Client  *http.Client
	Runner  runner.CommandRunner
	Log     *logging.Logger
}

type Result struct {
	Current   string `json:"current" yaml:"current"`
	Latest    string `json:"latest" yaml:"latest"`
	Outdated  bool   `json:"outdated" yaml:"outdated"`
	Installed bool   `json:"installed" yaml:"installed"`
}

// Latest fetches the version tagged latest for the package.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	// scoped names keep their @ but the slash must be escaped
	u := strings.TrimRight(c.RegistryURL, "/") + "/" + strings.Replace(url.PathEscape(c.Package), "%40", "@", 1) + "/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", u, resp.Status)
	}

	var body struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode registry response: %w", err)
	}
	if body.Version == "" {
		return "", fmt.Errorf("registry response for %s has no version", c.Package)
	}
	return body.Version, nil
}

// Check compares current against the registry. Network and install failures
// are returned so callers can decide how loudly to report them.
func (c *Checker) Check(ctx context.Context, current string) (Result, error) {
	res := Result{Current: current}
	latest, err := c.Latest(ctx)
	if err != nil {
		return res, err
	}
	res.Latest = latest
	res.Outdated = Compare(current, latest) < 0
	c.Log.Debugf("update: current=%s latest=%s outdated=%v", current, latest, res.Outdated)
	if !res.Outdated || !c.Install || c.Runner == nil {
		return res, nil
	}

	c.Log.Infof("Updating %s from %s to %s...", c.Package, current, latest)
	if _, err := runner.Output(ctx, c.Runner, "", "npm", "install", "-g", c.Package+"@"+latest); err != nil {
		return res, fmt.Errorf("install %s@%s: %w", c.Package, latest, err)
	}
	res.Installed = true
	return res, nil
}

// Compare orders dotted numeric versions. Pre-release suffixes sort before
// the plain release. Unparseable parts compare as strings.
func Compare(a, b string) int {
	aCore, aPre, _ := strings.Cut(strings.TrimPrefix(a, "v"), "-")
	bCore, bPre, _ := strings.Cut(strings.TrimPrefix(b, "v"), "-")

	as, bs := strings.Split(aCore, "."), strings.Split(bCore, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := comparePart(x, y); c != 0 {
			return c
		}
	}
	switch {
	case aPre == bPre:
		return 0
	case aPre == "":
		return 1
	case bPre == "":
		return -1
	default:
		return strings.Compare(aPre, bPre)
	}
}

func comparePart(x, y string) int {
	xn, xerr := strconv.Atoi(orZero(x))
	yn, yerr := strconv.Atoi(orZero(y))
	if xerr != nil || yerr != nil {
		return strings.Compare(x, y)
	}
	switch {
	case xn < yn:
		return -1
	case xn > yn:
		return 1
	}
	return 0
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
