// Package orchestrator runs one wrapped session: it obtains consent, patches
// the CLI, launches it and, in autorun mode, drives its input until the
// completion marker shows up or the child exits on its own.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/consent"
	"github.com/throw-if-null/yolo/internal/install"
	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/patch"
	"github.com/throw-if-null/yolo/internal/paths"
	"github.com/throw-if-null/yolo/internal/process"
	"github.com/throw-if-null/yolo/internal/reaper"
	"github.com/throw-if-null/yolo/internal/script"
	"github.com/throw-if-null/yolo/internal/sentinel"
	"github.com/throw-if-null/yolo/internal/store"
	"github.com/throw-if-null/yolo/internal/telemetry"
	"github.com/throw-if-null/yolo/internal/update"
)

var (
	ErrInstallationNotFound = install.ErrInstallationNotFound
	ErrConsentDeclined      = errors.New("consent declined")
	ErrPatch                = patch.ErrPatch
	ErrSpawn                = errors.New("spawn failed")
)

// LastSessionKey is the state-store key holding the last api.SessionReport.
const LastSessionKey = "last-session"

// reapWait bounds how long we wait for the child after the reaper ran.
const reapWait = 2 * time.Second

type Resolver interface {
	Resolve(ctx context.Context) (api.Installation, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, inst api.Installation, mode consent.Mode) (bool, error)
}

type Patcher interface {
	Patch(inst api.Installation) (patch.Report, error)
}

type Reaper interface {
	Reap(ctx context.Context, t reaper.Target) reaper.Report
}

type Updater interface {
	Check(ctx context.Context, current string) (update.Result, error)
}

type Orchestrator struct {
	Resolver Resolver
	Gate     Authorizer
	Patcher  Patcher
	Spawner  process.Spawner
	Reaper   Reaper
	// Updater and Stores are optional.
	Updater Updater
	Stores  store.Provider
	Out     io.Writer
	Log     *logging.Logger
	Opts    Options

	now   func() time.Time
	newID func() string
}

type Result struct {
	ExitCode            int
	TerminatedByWatcher bool
	SessionID           string
	Mode                api.RunMode
	Installation        api.Installation
	Session             *Session
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

func (o *Orchestrator) sessionID() string {
	if o.newID != nil {
		return o.newID()
	}
	return uuid.NewString()
}

func (o *Orchestrator) out() io.Writer {
	if o.Out == nil {
		return io.Discard
	}
	return o.Out
}

// Run executes one session with the caller's arguments. The returned error is
// one of the package's sentinel errors, wrapped, or ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, args []string) (res Result, err error) {
	res.SessionID = o.sessionID()
	res.Mode = api.ModeInteractive
	started := o.clock()

	ctx, span := telemetry.Tracer().Start(ctx, "yolo.session", trace.WithAttributes(attribute.String("session.id", res.SessionID)))
	s := newSession(res.SessionID, span, o.Log)
	res.Session = s

	defer func() {
		s.cleanup()
		s.transition(Done)
		span.SetAttributes(
			attribute.String("session.mode", string(res.Mode)),
			attribute.Int("session.exit_code", res.ExitCode),
			attribute.Bool("session.terminated_by_watcher", res.TerminatedByWatcher),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		o.recordSession(ctx, res, started, err)
	}()

	inst, err := o.Resolver.Resolve(ctx)
	if err != nil {
		return res, err
	}
	res.Installation = inst
	consent.RenderUsing(o.out(), inst.Dir)
	o.checkVersion(ctx, inst)

	payloadPath, err := paths.SessionFile(o.Opts.WorkDir, o.Opts.PayloadFile)
	if err != nil {
		return res, fmt.Errorf("autorun payload: %w", err)
	}
	payload, autorun, err := script.ReadPayload(payloadPath)
	if err != nil {
		return res, fmt.Errorf("read autorun payload: %w", err)
	}
	mode := o.Opts.InteractiveConsent
	if autorun {
		res.Mode = api.ModeAutorun
		mode = o.Opts.AutorunConsent
	}
	s.Mode = res.Mode
	span.SetAttributes(attribute.String("session.mode", string(res.Mode)))

	s.transition(Authorizing)
	ok, err := o.Gate.Authorize(ctx, inst, mode)
	if err != nil {
		return res, fmt.Errorf("consent: %w", err)
	}
	if !ok {
		return res, ErrConsentDeclined
	}

	s.transition(Patching)
	if err := o.patch(ctx, inst); err != nil {
		return res, err
	}
	consent.RenderActivated(o.out())

	s.transition(Launching)
	argv := append([]string{o.Opts.Node, inst.PatchedPath}, InjectBypass(args, o.Opts.BypassFlag, o.Opts.BypassPosition)...)
	o.Log.Debugf("launching %v", argv)

	if !autorun {
		res.ExitCode, err = o.runInteractive(s, argv)
		return res, err
	}
	res.ExitCode, res.TerminatedByWatcher, err = o.runAutorun(ctx, s, argv, payload)
	return res, err
}

func (o *Orchestrator) patch(ctx context.Context, inst api.Installation) error {
	_, span := telemetry.Tracer().Start(ctx, "yolo.patch", trace.WithAttributes(attribute.String("install.entry", inst.EntryName)))
	defer span.End()

	rep, err := o.Patcher.Patch(inst)
	for _, r := range rep.Rules {
		span.SetAttributes(attribute.Int("rule."+r.Name+".hits", r.Hits))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) checkVersion(ctx context.Context, inst api.Installation) {
	current, err := install.PackageVersion(inst.Dir)
	if err != nil {
		o.Log.Debugf("read installed version: %v", err)
		return
	}
	o.Log.Debugf("Claude version from package.json: %s", current)
	if o.Updater == nil {
		return
	}
	r, err := o.Updater.Check(ctx, current)
	if err != nil {
		o.Log.Debugf("update check: %v", err)
		return
	}
	if r.Outdated && !r.Installed {
		o.Log.Infof("A newer Claude CLI is available: %s (installed %s)", r.Latest, r.Current)
	}
}

func (o *Orchestrator) runInteractive(s *Session, argv []string) (int, error) {
	child, err := o.Spawner.Spawn(process.Spec{Argv: argv, Dir: o.Opts.WorkDir, Stdin: process.StdinInherit})
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	s.Target = reaper.Target{PID: child.PID(), PGID: child.PGID()}
	s.transition(Running)
	code, err := child.Wait()
	s.transition(Completing)
	if err != nil {
		return code, fmt.Errorf("%w: wait: %v", ErrSpawn, err)
	}
	return code, nil
}

func (o *Orchestrator) runAutorun(ctx context.Context, s *Session, argv []string, payload []byte) (int, bool, error) {
	marker, err := paths.SessionFile(o.Opts.WorkDir, o.Opts.MarkerFile)
	if err != nil {
		return 1, false, fmt.Errorf("completion marker: %w", err)
	}
	s.MarkerPath = marker
	s.own(marker)
	if err := os.Remove(marker); err == nil {
		o.Log.Debugf("removed stale completion marker %s", marker)
	}
	s.Script = script.Build(payload, o.Opts.Script)

	child, err := o.Spawner.Spawn(process.Spec{Argv: argv, Dir: o.Opts.WorkDir, Stdin: o.Opts.Stdin})
	if err != nil {
		return -1, false, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	s.Target = reaper.Target{PID: child.PID(), PGID: child.PGID()}
	s.transition(Running)

	exited := make(chan struct{})
	var exitCode int
	var waitErr error
	go func() {
		exitCode, waitErr = child.Wait()
		close(exited)
	}()

	sessCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(sessCtx)
	triggered := make(chan struct{})
	g.Go(func() error {
		in := child.Input()
		if in == nil {
			o.Log.Warnf("child stdin is not writable, autorun input skipped")
			return nil
		}
		if err := s.Script.Play(gctx, in); err != nil && gctx.Err() == nil {
			o.Log.Debugf("input script stopped: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		w := &sentinel.Watcher{Path: marker, Interval: o.Opts.PollInterval, Notify: o.Opts.Notify, Log: o.Log}
		if w.Wait(gctx) == nil {
			close(triggered)
		}
		return nil
	})
	defer func() {
		stop()
		_ = g.Wait()
	}()

	select {
	case <-exited:
		s.transition(Completing)
		if waitErr != nil {
			return exitCode, false, fmt.Errorf("%w: wait: %v", ErrSpawn, waitErr)
		}
		return exitCode, false, nil
	case <-triggered:
		o.terminate(ctx, s, child, exited, true)
		return 0, true, nil
	case <-ctx.Done():
		o.terminate(context.WithoutCancel(ctx), s, child, exited, false)
		return 130, false, ctx.Err()
	}
}

// terminate asks the child to leave, then reaps its process tree whether or
// not it complied.
func (o *Orchestrator) terminate(ctx context.Context, s *Session, child process.Child, exited <-chan struct{}, polite bool) {
	s.transition(ForceTerminating)
	if polite {
		if in := child.Input(); in != nil && o.Opts.ExitCommand != "" {
			if _, err := io.WriteString(in, o.Opts.ExitCommand); err != nil {
				o.Log.Debugf("write exit command: %v", err)
			}
		}
		if o.Opts.ExitGrace > 0 {
			timer := time.NewTimer(o.Opts.ExitGrace)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}

	_, span := telemetry.Tracer().Start(ctx, "yolo.reap", trace.WithAttributes(
		attribute.Int("target.pid", s.Target.PID),
		attribute.Int("target.pgid", s.Target.PGID),
	))
	rep := o.Reaper.Reap(ctx, s.Target)
	span.SetAttributes(attribute.IntSlice("reap.pids", rep.PIDs), attribute.Int("reap.failures", len(rep.Failures)))
	span.End()
	for _, f := range rep.Failures {
		o.Log.Debugf("reap: %s", f)
	}

	select {
	case <-exited:
	case <-time.After(reapWait):
		o.Log.Warnf("child %d still running after termination", s.Target.PID)
	}
}

func (o *Orchestrator) recordSession(ctx context.Context, res Result, started time.Time, runErr error) {
	if o.Stores == nil || res.Installation.Dir == "" {
		return
	}
	rep := api.SessionReport{
		SessionID:           res.SessionID,
		Mode:                res.Mode,
		ExitCode:            res.ExitCode,
		TerminatedByWatcher: res.TerminatedByWatcher,
		StartedAt:           started.UTC().Format(time.RFC3339),
		FinishedAt:          o.clock().UTC().Format(time.RFC3339),
	}
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	b, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if err := o.Stores.For(res.Installation.Dir).Set(context.WithoutCancel(ctx), LastSessionKey, string(b)); err != nil {
		o.Log.Debugf("record session: %v", err)
	}
}

// LastSession returns the report stored by the most recent run against inst.
func LastSession(ctx context.Context, stores store.Provider, installDir string) (api.SessionReport, error) {
	var rep api.SessionReport
	raw, err := stores.For(installDir).Get(ctx, LastSessionKey)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return rep, fmt.Errorf("decode %s: %w", LastSessionKey, err)
	}
	return rep, nil
}

// MarkerPath is where a session with opts expects the completion marker.
func MarkerPath(opts Options) string {
	return filepath.Join(opts.WorkDir, opts.MarkerFile)
}
