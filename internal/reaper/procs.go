package reaper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/throw-if-null/yolo/internal/runner"
)

type Process struct {
	PID     int
	PPID    int
	Command string
}

// Lister returns a snapshot of running processes.
type Lister interface {
	List(ctx context.Context) ([]Process, error)
}

// PSLister lists processes with ps(1).
type PSLister struct {
	Runner runner.CommandRunner
}

func (l *PSLister) List(ctx context.Context) ([]Process, error) {
	var out bytes.Buffer
	if _, err := l.Runner.Run(ctx, "", []string{"ps", "-axo", "pid=,ppid=,command="}, nil, &out, io.Discard); err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return parseProcessList(out.Bytes())
}

func parseProcessList(out []byte) ([]Process, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var procs []Process
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		procs = append(procs, Process{PID: pid, PPID: ppid, Command: strings.Join(fields[2:], " ")})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse process list: %w", err)
	}
	return procs, nil
}

// descendantPIDs walks the parent links breadth first from parentPID.
func descendantPIDs(parentPID int, procs []Process) []int {
	children := make(map[int][]int)
	for _, p := range procs {
		children[p.PPID] = append(children[p.PPID], p.PID)
	}

	var out []int
	queue := []int{parentPID}
	seen := map[int]struct{}{parentPID: {}}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, child := range children[pid] {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	sort.Ints(out)
	return out
}

// nameMatches returns processes whose command line mentions name.
func nameMatches(name string, procs []Process) []int {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	var out []int
	for _, p := range procs {
		if strings.Contains(p.Command, name) {
			out = append(out, p.PID)
		}
	}
	return out
}

func dedupeInts(in []int) []int {
	set := make(map[int]struct{}, len(in))
	var out []int
	for _, n := range in {
		if _, ok := set[n]; ok {
			continue
		}
		set[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
