/*
NAME
  trace.go

DESCRIPTION
  trace.go provides the YAML command trace format and its loader. A trace
  describes the sessions of one tracker context, the resource regions its
  commands use, and the commands themselves, each with the diagnostics it
  is expected to produce.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package trace loads recorded video coding command traces and replays them
// against a tracker, checking every command's diagnostics against the
// trace's expectations.
//
// A minimal trace looks like:
//
//	name: reference an inactive slot
//	extent: 176x144
//	session:
//	  Operation: decode_h264
//	  MaxDPBSlots: 2
//	  MaxActiveReferences: 1
//	resources:
//	  pic0: {image: 1}
//	steps:
//	  - begin: [{slot: 0, resource: pic0}]
//	    expect: [SlotInactiveReferenced]
package trace

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ausocean/vidval/diag"
	"github.com/ausocean/vidval/hazard"
	"github.com/ausocean/vidval/resource"
	"github.com/ausocean/vidval/tracker"
	"github.com/ausocean/vidval/tracker/config"
)

// DefaultSession is the name of the session described by a trace's session
// field. Steps that do not name a session use it.
const DefaultSession = "default"

// maxStreams bounds the streams a trace may use in each session.
const maxStreams = 64

// Trace is a recorded command trace.
type Trace struct {
	Name string `yaml:"name"`

	// Extent is the default coded extent, of the form WxH, of image regions
	// that do not give their own.
	Extent string `yaml:"extent"`

	// Session holds the config variables of the default session, as
	// accepted by config.Config.Update.
	Session map[string]string `yaml:"session"`

	// Sessions holds further named sessions.
	Sessions map[string]map[string]string `yaml:"sessions"`

	Regions map[string]Region `yaml:"resources"`
	Steps   []Step            `yaml:"steps"`

	ids map[string]resource.ID
}

// Region describes an image or buffer region. Exactly one of Image and
// Buffer is set to the region's handle.
type Region struct {
	Image  uint64  `yaml:"image"`
	Layer  uint32  `yaml:"layer"`
	Layers *uint32 `yaml:"layers"` // Defaults to 1.
	X      int32   `yaml:"x"`
	Y      int32   `yaml:"y"`
	Width  uint32  `yaml:"width"`
	Height uint32  `yaml:"height"`

	Buffer uint64 `yaml:"buffer"`
	Offset uint64 `yaml:"offset"`
	Size   uint64 `yaml:"size"`
}

// Step is one recorded command. Exactly one of Begin, Control, Decode,
// Encode, Barrier, End and Destroy is set.
type Step struct {
	Session string `yaml:"session"` // Defaults to DefaultSession.
	Stream  int    `yaml:"stream"`  // Index of the stream within its session.

	Begin   *[]Association `yaml:"begin"`
	Control *Control       `yaml:"control"`
	Decode  *Operation     `yaml:"decode"`
	Encode  *Operation     `yaml:"encode"`
	Barrier *Barrier       `yaml:"barrier"`
	End     bool           `yaml:"end"`
	Destroy bool           `yaml:"destroy"` // Destroys the step's session.

	// Expect lists the diagnostic kinds the command should produce, in any
	// order. An empty list expects none.
	Expect []string `yaml:"expect"`

	want []diag.Kind
}

// Association is a begin-time slot association. An empty Resource
// invalidates the slot.
type Association struct {
	Slot     int32  `yaml:"slot"`
	Resource string `yaml:"resource"`
}

// Control is a coding control command.
type Control struct {
	Reset        bool    `yaml:"reset"`
	RateControl  string  `yaml:"rateControl"`
	Bitrate      uint64  `yaml:"bitrate"`
	QualityLevel *uint32 `yaml:"qualityLevel"`
}

// Operation is a decode or encode operation. Resources are named by their
// key in the trace's resources map.
type Operation struct {
	Setup           *Setup           `yaml:"setup"`
	References      []Association    `yaml:"references"`
	Picture         string           `yaml:"picture"`
	Bitstream       string           `yaml:"bitstream"`
	QuantizationMap *QuantizationMap `yaml:"quantizationMap"`
	Query           *Query           `yaml:"query"`
}

// Setup is an operation's setup slot.
type Setup struct {
	Slot      int32  `yaml:"slot"`
	Resource  string `yaml:"resource"`
	Reference *bool  `yaml:"reference"` // Defaults to true.
}

// QuantizationMap is an encode quantization map; Kind is delta or emphasis.
type QuantizationMap struct {
	Kind     string `yaml:"kind"`
	Resource string `yaml:"resource"`
}

// Query is an inline query.
type Query struct {
	Pool  uint64 `yaml:"pool"`
	Index uint32 `yaml:"index"`
}

// Barrier is a synchronization barrier on one region. A missing scope
// covers every stage and access.
type Barrier struct {
	Resource string `yaml:"resource"`
	Src      *Scope `yaml:"src"`
	Dst      *Scope `yaml:"dst"`
}

// Scope is a barrier scope. Stages is a comma separated list of decode,
// encode, transfer, host or all; Access is read, write or readwrite.
type Scope struct {
	Stages string `yaml:"stages"`
	Access string `yaml:"access"`
}

// Load reads and checks the trace at path.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open trace")
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load trace %s", path)
	}
	if t.Name == "" {
		t.Name = path
	}
	return t, nil
}

// Parse decodes and checks a trace. Unknown fields are errors.
func Parse(r io.Reader) (*Trace, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var t Trace
	err := dec.Decode(&t)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode trace")
	}
	err = t.check()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// check resolves the trace's regions and expectations and checks that each
// step names exactly one command and only known resources.
func (t *Trace) check() error {
	var def resource.Extent2D
	if t.Extent != "" {
		var err error
		def, err = config.ParseExtent(t.Extent)
		if err != nil {
			return errors.Wrap(err, "bad trace extent")
		}
	}

	t.ids = make(map[string]resource.ID, len(t.Regions))
	for name, r := range t.Regions {
		id, err := r.id(def)
		if err != nil {
			return errors.Wrapf(err, "resource %s", name)
		}
		t.ids[name] = id
	}

	for i := range t.Steps {
		s := &t.Steps[i]
		if _, err := s.Call(); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
		for _, name := range s.resources() {
			if _, ok := t.ids[name]; name != "" && !ok {
				return fmt.Errorf("step %d: unknown resource %q", i, name)
			}
		}
		if err := t.convertible(s); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
		if s.Session != "" && s.Session != DefaultSession {
			if _, ok := t.Sessions[s.Session]; !ok {
				return fmt.Errorf("step %d: unknown session %q", i, s.Session)
			}
		}
		if s.Stream < 0 {
			return fmt.Errorf("step %d: negative stream index %d", i, s.Stream)
		}
		if s.Stream >= maxStreams {
			return fmt.Errorf("step %d: stream index %d exceeds %d", i, s.Stream, maxStreams-1)
		}
		s.want = s.want[:0]
		for _, e := range s.Expect {
			k, err := diag.ParseKind(e)
			if err != nil {
				return errors.Wrapf(err, "step %d", i)
			}
			s.want = append(s.want, k)
		}
	}
	return nil
}

// convertible checks that the step's command converts to tracker types.
func (t *Trace) convertible(s *Step) error {
	var err error
	switch {
	case s.Control != nil:
		_, err = s.Control.control()
	case s.Decode != nil:
		_, err = t.operation(s.Decode)
	case s.Encode != nil:
		_, err = t.operation(s.Encode)
	case s.Barrier != nil:
		_, err = t.barrier(s.Barrier)
	}
	return err
}

func (r Region) id(def resource.Extent2D) (resource.ID, error) {
	switch {
	case r.Image != 0 && r.Buffer != 0:
		return resource.ID{}, errors.New("region is both image and buffer")
	case r.Image != 0:
		ext := resource.Extent2D{Width: r.Width, Height: r.Height}
		if ext == (resource.Extent2D{}) {
			ext = def
		}
		id := resource.Image(r.Image, r.Layer, resource.Offset2D{X: r.X, Y: r.Y}, ext)
		if r.Layers != nil {
			id.LayerCount = *r.Layers
		}
		return id, nil
	case r.Buffer != 0:
		return resource.Buffer(r.Buffer, r.Offset, r.Size), nil
	default:
		return resource.ID{}, errors.New("region has no image or buffer handle")
	}
}

// Call returns the name of the step's command.
func (s *Step) Call() (string, error) {
	var calls []string
	if s.Begin != nil {
		calls = append(calls, "begin")
	}
	if s.Control != nil {
		calls = append(calls, "control")
	}
	if s.Decode != nil {
		calls = append(calls, "decode")
	}
	if s.Encode != nil {
		calls = append(calls, "encode")
	}
	if s.Barrier != nil {
		calls = append(calls, "barrier")
	}
	if s.End {
		calls = append(calls, "end")
	}
	if s.Destroy {
		calls = append(calls, "destroy")
	}
	switch len(calls) {
	case 0:
		return "", errors.New("step has no command")
	case 1:
		return calls[0], nil
	default:
		return "", fmt.Errorf("step has several commands: %s", strings.Join(calls, ", "))
	}
}

// resources returns the names of every resource the step uses.
func (s *Step) resources() []string {
	var names []string
	if s.Begin != nil {
		for _, a := range *s.Begin {
			names = append(names, a.Resource)
		}
	}
	for _, op := range []*Operation{s.Decode, s.Encode} {
		if op == nil {
			continue
		}
		if op.Setup != nil {
			names = append(names, op.Setup.Resource)
		}
		for _, r := range op.References {
			names = append(names, r.Resource)
		}
		names = append(names, op.Picture, op.Bitstream)
		if op.QuantizationMap != nil {
			names = append(names, op.QuantizationMap.Resource)
		}
	}
	if s.Barrier != nil {
		names = append(names, s.Barrier.Resource)
	}
	return names
}

// Want returns the diagnostic kinds the step expects.
func (s *Step) Want() []diag.Kind { return s.want }

// region returns the named resource; the empty name is the null resource.
func (t *Trace) region(name string) resource.ID { return t.ids[name] }

func (t *Trace) associations(list []Association) []tracker.ReferenceSlot {
	if len(list) == 0 {
		return nil
	}
	refs := make([]tracker.ReferenceSlot, len(list))
	for i, a := range list {
		refs[i] = tracker.ReferenceSlot{Slot: a.Slot, Resource: t.region(a.Resource)}
	}
	return refs
}

func (t *Trace) operation(op *Operation) (tracker.Operation, error) {
	o := tracker.Operation{
		References: t.associations(op.References),
		Picture:    t.region(op.Picture),
		Bitstream:  t.region(op.Bitstream),
	}
	if s := op.Setup; s != nil {
		o.Setup = &tracker.SetupSlot{Slot: s.Slot, Resource: t.region(s.Resource), Reference: s.Reference == nil || *s.Reference}
	}
	if q := op.QuantizationMap; q != nil {
		m := &tracker.QuantizationMap{Resource: t.region(q.Resource)}
		switch strings.ToLower(q.Kind) {
		case "", "delta":
			m.Kind = tracker.QuantizationDelta
		case "emphasis":
			m.Kind = tracker.QuantizationEmphasis
		default:
			return o, fmt.Errorf("unknown quantization map kind %q", q.Kind)
		}
		o.QuantizationMap = m
	}
	if q := op.Query; q != nil {
		o.Query = &tracker.InlineQuery{Pool: q.Pool, Index: q.Index}
	}
	return o, nil
}

func (c *Control) control() (tracker.Control, error) {
	tc := tracker.Control{Reset: c.Reset, QualityLevel: c.QualityLevel}
	if c.RateControl != "" {
		var mode config.RateControlMode
		for _, s := range strings.Split(c.RateControl, ",") {
			m, err := config.ParseRateControlMode(s)
			if err != nil {
				return tc, err
			}
			mode |= m
		}
		tc.RateControl = &tracker.RateControl{Mode: mode, Bitrate: c.Bitrate}
	}
	return tc, nil
}

func (t *Trace) barrier(b *Barrier) (hazard.Barrier, error) {
	src, err := b.Src.scope()
	if err != nil {
		return hazard.Barrier{}, errors.Wrap(err, "bad src scope")
	}
	dst, err := b.Dst.scope()
	if err != nil {
		return hazard.Barrier{}, errors.Wrap(err, "bad dst scope")
	}
	return hazard.Barrier{Region: t.region(b.Resource), Src: src, Dst: dst}, nil
}

var stageNames = map[string]hazard.Stage{
	"decode":   hazard.StageDecode,
	"encode":   hazard.StageEncode,
	"transfer": hazard.StageTransfer,
	"host":     hazard.StageHost,
	"all":      hazard.StageAll,
}

var accessNames = map[string]hazard.Access{
	"read":      hazard.AccessRead,
	"write":     hazard.AccessWrite,
	"readwrite": hazard.AccessReadWrite,
}

func (s *Scope) scope() (hazard.Scope, error) {
	if s == nil {
		return hazard.FullScope, nil
	}
	sc := hazard.FullScope
	if s.Stages != "" {
		sc.Stages = 0
		for _, n := range strings.Split(s.Stages, ",") {
			st, ok := stageNames[strings.ToLower(strings.TrimSpace(n))]
			if !ok {
				return sc, fmt.Errorf("unknown stage %q", n)
			}
			sc.Stages |= st
		}
	}
	if s.Access != "" {
		a, ok := accessNames[strings.ToLower(strings.TrimSpace(s.Access))]
		if !ok {
			return sc, fmt.Errorf("unknown access %q", s.Access)
		}
		sc.Access = a
	}
	return sc, nil
}
