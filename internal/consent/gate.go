package consent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/store"
)

// Mode selects how Request obtains a decision.
type Mode string

const (
	// ModePrompt shows the terms and waits for the operator.
	ModePrompt Mode = "prompt"
	// ModeAutoApprove shows the terms and answers yes on the operator's behalf.
	ModeAutoApprove Mode = "auto"
)

const recordKey = "consent"

var ErrInvalidMode = errors.New("invalid consent mode")

type Gate struct {
	stores store.Provider
	in     *bufio.Reader
	out    io.Writer
	flag   string
	now    func() time.Time
	log    *logging.Logger
}

// NewGate builds a gate over stores. in/out are used for the prompt; flag is
// the safety-bypass flag named in the terms.
func NewGate(stores store.Provider, in io.Reader, out io.Writer, flag string, log *logging.Logger) *Gate {
	return &Gate{
		stores: stores,
		in:     bufio.NewReader(in),
		out:    out,
		flag:   flag,
		now:    time.Now,
		log:    log,
	}
}

// Record returns the persisted consent record for inst, or store.ErrNotFound.
func (g *Gate) Record(ctx context.Context, inst api.Installation) (api.ConsentRecord, error) {
	var rec api.ConsentRecord
	raw, err := g.stores.For(inst.Dir).Get(ctx, recordKey)
	if err != nil {
		return rec, err
	}
	// Legacy markers hold free text; their existence alone counts.
	if jerr := json.Unmarshal([]byte(raw), &rec); jerr != nil {
		rec = api.ConsentRecord{Source: api.ConsentOperator}
	}
	return rec, nil
}

func (g *Gate) IsGranted(ctx context.Context, inst api.Installation) (bool, error) {
	_, err := g.Record(ctx, inst)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Needed reports whether consent must be requested: the patched artifact is
// absent or no record is persisted.
func (g *Gate) Needed(ctx context.Context, inst api.Installation) (bool, error) {
	if _, err := os.Stat(inst.PatchedPath); err != nil {
		g.log.Debugf("patched CLI %s not present, consent required", inst.PatchedPath)
		return true, nil
	}
	granted, err := g.IsGranted(ctx, inst)
	if err != nil {
		return true, err
	}
	return !granted, nil
}

// Request presents the terms and returns the decision. In ModeAutoApprove the
// answer is synthesized.
func (g *Gate) Request(ctx context.Context, mode Mode) (bool, error) {
	RenderTerms(g.out, g.flag)
	switch mode {
	case ModeAutoApprove:
		fmt.Fprintf(g.out, "%syes\n", renderQuestion())
		fmt.Fprintf(g.out, "\n%s\n", renderApproved(true))
		return true, nil
	case ModePrompt:
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	fmt.Fprint(g.out, renderQuestion())
	answer, err := g.readLine(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y":
		fmt.Fprintf(g.out, "\n%s\n", renderApproved(false))
		return true, nil
	default:
		fmt.Fprintf(g.out, "\n%s\n", renderDeclined())
		return false, nil
	}
}

// readLine reads one line from the operator. If ctx ends first the reading
// goroutine stays blocked on g.in until it yields a line or EOF; the process
// exits shortly after a canceled prompt, so it is not reclaimed.
func (g *Gate) readLine(ctx context.Context) (string, error) {
	if ctx.Done() == nil {
		return g.in.ReadString('\n')
	}
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := g.in.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

// Persist records consent for inst. An existing record is left as it is.
func (g *Gate) Persist(ctx context.Context, inst api.Installation, source api.ConsentSource) error {
	kv := g.stores.For(inst.Dir)
	if _, err := kv.Get(ctx, recordKey); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	b, err := json.Marshal(api.ConsentRecord{
		GrantedAt: g.now().UTC().Format(time.RFC3339),
		Source:    source,
	})
	if err != nil {
		return err
	}
	if err := kv.Set(ctx, recordKey, string(b)); err != nil {
		return err
	}
	g.log.Debugf("consent recorded for %s (source=%s)", inst.Dir, source)
	return nil
}

// Revoke removes the consent record for inst.
func (g *Gate) Revoke(ctx context.Context, inst api.Installation) error {
	return g.stores.For(inst.Dir).Delete(ctx, recordKey)
}

// Authorize runs the whole gate: it asks only when Needed, and persists on a
// yes. A failure to persist is logged and does not revoke the decision.
func (g *Gate) Authorize(ctx context.Context, inst api.Installation, mode Mode) (bool, error) {
	needed, err := g.Needed(ctx, inst)
	if err != nil {
		g.log.Debugf("consent lookup failed, asking again: %v", err)
	}
	if !needed {
		return true, nil
	}
	ok, err := g.Request(ctx, mode)
	if err != nil || !ok {
		return false, err
	}
	source := api.ConsentOperator
	if mode == ModeAutoApprove {
		source = api.ConsentAuto
	}
	if err := g.Persist(ctx, inst, source); err != nil {
		g.log.Warnf("could not record consent: %v", err)
	}
	return true, nil
}
