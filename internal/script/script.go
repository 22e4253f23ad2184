// Package script builds the timed input sequence fed to an autorun child.
//
// The sequence answers a confirmation prompt, waits, sends the payload, waits
// again and sends a final newline. The fixed delays stand in for real
// readiness detection and are fragile against a slow child.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

type Kind int

const (
	Write Kind = iota
	Delay
)

type Step struct {
	Phase string
	Kind  Kind
	Data  []byte
	Wait  time.Duration
}

type Script struct {
	Steps []Step
}

type Options struct {
	Ack      string
	Settle   time.Duration
	Trailing time.Duration
}

func DefaultOptions() Options {
	return Options{Ack: "y\n", Settle: 3 * time.Second, Trailing: time.Second}
}

// Build returns the four-phase sequence: ack, settle delay, payload, then
// trailing delay followed by a line terminator.
func Build(payload []byte, opts Options) Script {
	return Script{Steps: []Step{
		{Phase: "ack", Kind: Write, Data: []byte(opts.Ack)},
		{Phase: "settle", Kind: Delay, Wait: opts.Settle},
		{Phase: "payload", Kind: Write, Data: append([]byte(nil), payload...)},
		{Phase: "trailing", Kind: Delay, Wait: opts.Trailing},
		{Phase: "flush", Kind: Write, Data: []byte("\n")},
	}}
}

// Play performs the steps against w in order. It returns ctx.Err() as soon as
// ctx is cancelled, without writing the remaining steps.
func (s Script) Play(ctx context.Context, w io.Writer) error {
	for _, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch st.Kind {
		case Write:
			if len(st.Data) == 0 {
				continue
			}
			if _, err := w.Write(st.Data); err != nil {
				return fmt.Errorf("write %s: %w", st.Phase, err)
			}
		case Delay:
			if st.Wait <= 0 {
				continue
			}
			t := time.NewTimer(st.Wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil
}

// Bytes returns everything the script writes, without the delays.
func (s Script) Bytes() []byte {
	var b bytes.Buffer
	for _, st := range s.Steps {
		if st.Kind == Write {
			b.Write(st.Data)
		}
	}
	return b.Bytes()
}

// Duration is the total time spent in delays.
func (s Script) Duration() time.Duration {
	var d time.Duration
	for _, st := range s.Steps {
		if st.Kind == Delay {
			d += st.Wait
		}
	}
	return d
}

// ReadPayload reads the autorun payload at path. found is false when the file
// does not exist, which means autorun is not engaged.
func ReadPayload(path string) (payload []byte, found bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}
