/*
NAME
  replay.go

DESCRIPTION
  replay.go replays a trace against a fresh tracker context and compares
  the diagnostics of every command with those the trace expects.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package trace

import (
	"fmt"
	"sort"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/vidval/diag"
	"github.com/ausocean/vidval/dpb"
	"github.com/ausocean/vidval/hazard"
	"github.com/ausocean/vidval/tracker"
	"github.com/ausocean/vidval/tracker/config"
)

// Outcome is the result of replaying one step.
type Outcome struct {
	Step       int
	Call       string
	Session    string
	Stream     int
	References int // Reference slots used by a decode or encode.
	Want       []diag.Kind
	Err        error // The command's diagnostics, or nil.
}

// Got returns the kinds of the diagnostics the step produced.
func (o Outcome) Got() []diag.Kind { return diag.Kinds(o.Err) }

// Matched reports whether the step produced exactly the expected kinds,
// ignoring order.
func (o Outcome) Matched() bool {
	got, want := sorted(o.Got()), sorted(o.Want)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func (o Outcome) String() string {
	return fmt.Sprintf("step %d %s (session %s stream %d): want %v got %v", o.Step, o.Call, o.Session, o.Stream, o.Want, o.Got())
}

func sorted(k []diag.Kind) []diag.Kind {
	s := append([]diag.Kind(nil), k...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s
}

// Result holds the outcomes of one replay.
type Result struct {
	Name     string
	Outcomes []Outcome
}

// Mismatches returns the outcomes that did not match their expectations.
func (r *Result) Mismatches() []Outcome {
	var m []Outcome
	for _, o := range r.Outcomes {
		if !o.Matched() {
			m = append(m, o)
		}
	}
	return m
}

// OK reports whether every step matched its expectations.
func (r *Result) OK() bool { return len(r.Mismatches()) == 0 }

// Replay records every step of t against a new tracker context and returns
// the outcome of each. Sessions log to l at the given level. An error is
// returned only if the trace cannot be replayed at all; unexpected
// diagnostics are reported through the Result.
func Replay(t *Trace, l logging.Logger, level int8) (*Result, error) {
	ctx := tracker.NewContext(l)

	if _, ok := t.Sessions[DefaultSession]; ok {
		return nil, fmt.Errorf("session name %q is reserved", DefaultSession)
	}
	vars := map[string]map[string]string{DefaultSession: t.Session}
	for name, v := range t.Sessions {
		vars[name] = v
	}

	sessions := make(map[string]*tracker.Session, len(vars))
	for _, name := range sessionNames(vars) {
		cfg := config.Config{Logger: l, LogLevel: level}
		cfg.Update(vars[name])
		s, err := ctx.NewSession(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "could not create session %s", name)
		}
		sessions[name] = s
	}
	streams := make(map[string][]*tracker.Stream)

	res := &Result{Name: t.Name}
	for i := range t.Steps {
		s := &t.Steps[i]
		name := s.Session
		if name == "" {
			name = DefaultSession
		}
		sess := sessions[name]
		for len(streams[name]) <= s.Stream {
			streams[name] = append(streams[name], sess.NewStream())
		}
		st := streams[name][s.Stream]

		call, _ := s.Call()
		o := Outcome{Step: i, Call: call, Session: name, Stream: s.Stream, Want: s.want}
		var err error
		switch call {
		case "begin":
			o.Err = st.Begin(t.beginAssociations(*s.Begin))
		case "control":
			var c tracker.Control
			c, err = s.Control.control()
			if err == nil {
				o.Err = st.Control(c)
			}
		case "decode", "encode":
			opt := s.Decode
			if call == "encode" {
				opt = s.Encode
			}
			var op tracker.Operation
			op, err = t.operation(opt)
			if err != nil {
				break
			}
			o.References = len(op.References)
			if call == "decode" {
				o.Err = st.Decode(op)
			} else {
				o.Err = st.Encode(op)
			}
		case "barrier":
			var b hazard.Barrier
			b, err = t.barrier(s.Barrier)
			if err == nil {
				st.Barrier(b)
			}
		case "end":
			o.Err = st.End()
		case "destroy":
			sess.Destroy()
		}
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		res.Outcomes = append(res.Outcomes, o)
	}

	for _, s := range sessions {
		s.Destroy()
	}
	return res, nil
}

// ReplayFile loads and replays the trace at path.
func ReplayFile(path string, l logging.Logger, level int8) (*Result, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Replay(t, l, level)
}

func (t *Trace) beginAssociations(list []Association) []dpb.Association {
	if len(list) == 0 {
		return nil
	}
	a := make([]dpb.Association, len(list))
	for i, v := range list {
		a[i] = dpb.Association{Slot: v.Slot, Resource: t.region(v.Resource)}
	}
	return a
}

// sessionNames returns the session names in creation order: the default
// session first, then the rest by name.
func sessionNames(vars map[string]map[string]string) []string {
	names := make([]string, 0, len(vars))
	for n := range vars {
		if n != DefaultSession {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return append([]string{DefaultSession}, names...)
}
