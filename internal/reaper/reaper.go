// Package reaper terminates a child process tree: SIGTERM first, then SIGKILL
// after a grace period, against the child's process group and every
// descendant still visible in the process table.
//
// Matching by program name is a last resort for children that escaped the
// group and were re-parented; it is off unless NameMatch is set.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/throw-if-null/yolo/internal/logging"
)

type Target struct {
	PID  int
	PGID int
}

type Report struct {
	Group    int      `json:"group,omitempty" yaml:"group,omitempty"`
	PIDs     []int    `json:"pids" yaml:"pids"`
	Killed   bool     `json:"killed" yaml:"killed"`
	Failures []string `json:"failures,omitempty" yaml:"failures,omitempty"`
}

type Reaper struct {
	Lister      Lister
	Grace       time.Duration
	NameMatch   bool
	ProcessName string
	Log         *logging.Logger

	kill func(pid int, sig unix.Signal) error
	self int
	// protected pids are never signalled (this process and its parent)
	protected map[int]bool
	ownGroup  int
}

func New(lister Lister, grace time.Duration, log *logging.Logger) *Reaper {
	return &Reaper{
		Lister:    lister,
		Grace:     grace,
		Log:       log,
		kill:      unix.Kill,
		self:      os.Getpid(),
		protected: map[int]bool{os.Getpid(): true, os.Getppid(): true},
		ownGroup:  unix.Getpgrp(),
	}
}

// Plan resolves the group and pids that Reap would signal, without signalling.
func (r *Reaper) Plan(ctx context.Context, t Target) Report {
	rep := Report{}
	if t.PGID > 1 && t.PGID != r.ownGroup {
		rep.Group = t.PGID
	}

	var candidates []int
	if t.PID > 1 {
		candidates = append(candidates, t.PID)
	}
	if r.Lister != nil {
		procs, err := r.Lister.List(ctx)
		if err != nil {
			rep.Failures = append(rep.Failures, err.Error())
		} else {
			if t.PID > 1 {
				candidates = append(candidates, descendantPIDs(t.PID, procs)...)
			}
			if r.NameMatch {
				candidates = append(candidates, nameMatches(r.ProcessName, procs)...)
			}
		}
	}
	for _, pid := range dedupeInts(candidates) {
		if pid <= 1 || r.protected[pid] {
			continue
		}
		rep.PIDs = append(rep.PIDs, pid)
	}
	return rep
}

// Reap sends SIGTERM to the planned targets, waits Grace, then sends SIGKILL
// to the same targets. It is best-effort: failures are collected in the
// report and never returned as an error.
func (r *Reaper) Reap(ctx context.Context, t Target) Report {
	rep := r.Plan(ctx, t)
	r.Log.Debugf("reaper: SIGTERM group=%d pids=%v", rep.Group, rep.PIDs)
	rep.Failures = append(rep.Failures, r.sweep(rep, unix.SIGTERM)...)

	if r.Grace > 0 {
		timer := time.NewTimer(r.Grace)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	r.Log.Debugf("reaper: SIGKILL group=%d pids=%v", rep.Group, rep.PIDs)
	rep.Failures = append(rep.Failures, r.sweep(rep, unix.SIGKILL)...)
	rep.Killed = true
	for _, f := range rep.Failures {
		r.Log.Debugf("reaper: %s", f)
	}
	return rep
}

func (r *Reaper) sweep(rep Report, sig unix.Signal) []string {
	var failures []string
	send := func(pid int, label string) {
		if err := r.kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
			failures = append(failures, fmt.Sprintf("%s %s: %v", unix.SignalName(sig), label, err))
		}
	}
	if rep.Group > 1 {
		send(-rep.Group, fmt.Sprintf("group %d", rep.Group))
	}
	for _, pid := range rep.PIDs {
		send(pid, fmt.Sprintf("pid %d", pid))
	}
	return failures
}
