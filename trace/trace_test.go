/*
NAME
  trace_test.go

DESCRIPTION
  trace_test.go provides testing for trace loading, replay and summaries.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package trace

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/stretchr/testify/require"

	"github.com/ausocean/vidval/diag"
	"github.com/ausocean/vidval/hazard"
	"github.com/ausocean/vidval/resource"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

func TestReplayTestdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			res, err := ReplayFile(p, &dumbLogger{}, logging.Error)
			require.NoError(t, err)
			for _, o := range res.Mismatches() {
				t.Errorf("%v: %v", o, o.Err)
			}
		})
	}
}

func TestActivationOverwriteOutcomes(t *testing.T) {
	res, err := ReplayFile("testdata/activation_overwrite.yaml", &dumbLogger{}, logging.Error)
	require.NoError(t, err)
	require.Equal(t, "activation and hazard interplay", res.Name)
	require.Len(t, res.Outcomes, 7)

	o := res.Outcomes[3]
	require.Equal(t, "decode", o.Call)
	l, ok := diag.FromError(o.Err)
	require.True(t, ok)
	for _, d := range l {
		require.Equal(t, int32(0), d.Slot)
		require.Equal(t, resource.KindImage, d.Resource.Kind)
		require.Equal(t, uint64(1), d.Resource.Handle)
	}
	require.Equal(t, 1, res.Outcomes[2].References)
}

func TestParse(t *testing.T) {
	tr, err := Parse(strings.NewReader(`
name: parse
extent: 64x32
session: {Operation: encode_av1}
resources:
  a: {image: 1, layer: 2, layers: 3, x: 4, y: 8, width: 16, height: 16}
  b: {image: 2}
  c: {buffer: 3, offset: 10, size: 20}
steps:
  - begin: []
  - barrier: {resource: a, src: {stages: "decode, encode", access: write}, dst: {access: read}}
  - end: true
`))
	require.NoError(t, err)

	require.Equal(t, resource.ID{
		Kind:       resource.KindImage,
		Handle:     1,
		BaseLayer:  2,
		LayerCount: 3,
		Offset:     resource.Offset2D{X: 4, Y: 8},
		Extent:     resource.Extent2D{Width: 16, Height: 16},
	}, tr.region("a"))
	require.Equal(t, resource.Image(2, 0, resource.Offset2D{}, resource.Extent2D{Width: 64, Height: 32}), tr.region("b"))
	require.Equal(t, resource.Buffer(3, 10, 20), tr.region("c"))
	require.True(t, tr.region("").IsNull())

	b, err := tr.barrier(tr.Steps[1].Barrier)
	require.NoError(t, err)
	require.Equal(t, hazard.Scope{Stages: hazard.StageDecode | hazard.StageEncode, Access: hazard.AccessWrite}, b.Src)
	require.Equal(t, hazard.Scope{Stages: hazard.StageAll, Access: hazard.AccessRead}, b.Dst)

	for i, want := range []string{"begin", "barrier", "end"} {
		got, err := tr.Steps[i].Call()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseErrors(t *testing.T) {
	const head = "resources: {a: {image: 1}, bs: {buffer: 2, size: 8}}\n"
	tests := []struct {
		name  string
		trace string
		want  string
	}{
		{"no command", head + "steps: [{expect: []}]", "no command"},
		{"two commands", head + "steps: [{begin: [], end: true}]", "several commands"},
		{"unknown resource", head + "steps: [{decode: {picture: nope}}]", "unknown resource"},
		{"unknown kind", head + "steps: [{end: true, expect: [Oops]}]", "unknown diagnostic kind"},
		{"unknown field", head + "steps: [{finish: true}]", "could not decode"},
		{"unknown session", head + "steps: [{session: x, end: true}]", "unknown session"},
		{"negative stream", head + "steps: [{stream: -1, end: true}]", "negative stream"},
		{"stream index too large", head + "steps: [{stream: 100000, end: true}]", "exceeds"},
		{"bad stage", head + "steps: [{barrier: {resource: a, src: {stages: gpu}}}]", "unknown stage"},
		{"bad access", head + "steps: [{barrier: {resource: a, dst: {access: all}}}]", "unknown access"},
		{"bad rate control", head + "steps: [{control: {rateControl: fast}}]", "unknown rate control"},
		{"bad map kind", head + "steps: [{encode: {quantizationMap: {kind: huge, resource: a}}}]", "quantization map kind"},
		{"image and buffer", "resources: {a: {image: 1, buffer: 1}}", "both image and buffer"},
		{"empty region", "resources: {a: {}}", "no image or buffer"},
		{"bad extent", "extent: big", "bad trace extent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.trace))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReplayStreams(t *testing.T) {
	res, err := ReplayFile("testdata/cross_stream.yaml", &dumbLogger{}, logging.Error)
	require.NoError(t, err)
	require.True(t, res.OK())

	o := res.Outcomes[4]
	require.Equal(t, 1, o.Stream)
	require.Equal(t, []diag.Kind{diag.ReadAfterWrite}, o.Got())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("testdata/does_not_exist.yaml")
	require.Error(t, err)
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestReplayReservedSession(t *testing.T) {
	tr, err := Parse(strings.NewReader("sessions: {default: {}}\nsteps: [{begin: []}]"))
	require.NoError(t, err)
	_, err = Replay(tr, &dumbLogger{}, logging.Error)
	require.Error(t, err)
}

func TestReplayMismatch(t *testing.T) {
	tr, err := Parse(strings.NewReader(`
steps:
  - end: true
  - begin: []
    expect: [ScopeAlreadyOpen]
  - stream: 1
    begin: []
`))
	require.NoError(t, err)
	res, err := Replay(tr, &dumbLogger{}, logging.Error)
	require.NoError(t, err)
	require.False(t, res.OK())

	m := res.Mismatches()
	require.Len(t, m, 2)
	require.Equal(t, 0, m[0].Step)
	require.Equal(t, []diag.Kind{diag.ScopeNotOpen}, m[0].Got())
	require.Equal(t, 1, m[1].Step)
	require.Empty(t, m[1].Got())
	require.True(t, res.Outcomes[2].Matched())
}

func TestSummarize(t *testing.T) {
	twoDiags := diag.List{
		diag.New(diag.TooManyReferences, diag.NoSlot, resource.ID{}, ""),
		diag.New(diag.WriteAfterWrite, 0, resource.ID{}, ""),
	}
	r := &Result{Outcomes: []Outcome{
		{Call: "begin"},
		{Call: "decode", References: 0},
		{Call: "decode", References: 2, Err: twoDiags, Want: []diag.Kind{diag.WriteAfterWrite, diag.TooManyReferences}},
		{Call: "decode", References: 4, Err: twoDiags[1:]},
	}}

	s := Summarize(r)
	require.Equal(t, 1, s.Traces)
	require.Equal(t, 4, s.Steps)
	require.Equal(t, 3, s.Operations)
	require.Equal(t, 1, s.Mismatches)
	require.Equal(t, 3, s.Diagnostics)
	require.Equal(t, map[diag.Kind]int{diag.TooManyReferences: 1, diag.WriteAfterWrite: 2}, s.Kinds)
	require.Equal(t, map[diag.Class]int{diag.ClassConfiguration: 1, diag.ClassHazard: 2}, s.Classes)
	require.InDelta(t, 2, s.RefsMean, 1e-9)
	require.InDelta(t, 2, s.RefsStdDev, 1e-9)
	require.InDelta(t, 0.75, s.DiagMean, 1e-9)
	require.Contains(t, s.String(), "WriteAfterWrite=2")

	empty := Summarize()
	require.Zero(t, empty.RefsMean)
	require.Zero(t, empty.DiagStdDev)
}
