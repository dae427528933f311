/*
NAME
  tracker_test.go

DESCRIPTION
  tracker_test.go provides testing for sessions, the coding scope state
  machine and the interplay of slot activation and hazard tracking.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package tracker

import (
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/vidval/codec/codecutil"
	"github.com/ausocean/vidval/diag"
	"github.com/ausocean/vidval/dpb"
	"github.com/ausocean/vidval/hazard"
	"github.com/ausocean/vidval/resource"
	"github.com/ausocean/vidval/tracker/config"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

var ext = resource.Extent2D{Width: 176, Height: 144}

// pic returns layer 0 of image h.
func pic(h uint64) resource.ID { return resource.Image(h, 0, resource.Offset2D{}, ext) }

// bitstream returns a 1KiB range of buffer h.
func bitstream(h uint64) resource.ID { return resource.Buffer(h, 0, 1024) }

func decodeConfig(slots, refs uint32) config.Config {
	return config.Config{
		Logger:              &dumbLogger{},
		Operation:           codecutil.Operation{Direction: codecutil.Decode, Codec: codecutil.H264},
		MaxDPBSlots:         slots,
		MaxActiveReferences: refs,
		MaxCodedExtent:      ext,
		DPBLayers:           1,
		Coincide:            true,
		Distinct:            true,
	}
}

func newStream(t *testing.T, cfg config.Config) *Stream {
	t.Helper()
	ctx := NewContext(&dumbLogger{})
	s, err := ctx.NewSession(cfg)
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	return s.NewStream()
}

// decodeInto returns a coincide-mode decode reconstructing image h into slot.
func decodeInto(slot int32, h uint64, refs ...ReferenceSlot) Operation {
	return Operation{
		Setup:      &SetupSlot{Slot: slot, Resource: pic(h), Reference: true},
		References: refs,
		Picture:    pic(h),
		Bitstream:  bitstream(1000),
	}
}

func mustNil(t *testing.T, what string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected diagnostics: %v", what, err)
	}
}

func wantKinds(t *testing.T, what string, err error, want ...diag.Kind) {
	t.Helper()
	if len(want) == 0 {
		want = nil
	}
	if got := diag.Kinds(err); !cmp.Equal(got, want) {
		t.Errorf("%s: unexpected diagnostics (-want +got):\n%s\nerr: %v", what, cmp.Diff(want, got), err)
	}
}

func TestActivationThenOverwriteHazard(t *testing.T) {
	st := newStream(t, decodeConfig(2, 1))

	mustNil(t, "begin", st.Begin([]dpb.Association{{Slot: 0}, {Slot: 1}}))
	mustNil(t, "first decode", st.Decode(decodeInto(0, 10)))

	s, _ := st.Slot(0)
	if s.State != dpb.Active || s.Resource != pic(10) {
		t.Fatalf("slot 0 not activated: %+v", s)
	}

	mustNil(t, "second decode", st.Decode(decodeInto(1, 11, ReferenceSlot{Slot: 0, Resource: pic(10)})))

	err := st.Decode(decodeInto(0, 10))
	if !diag.Has(err, diag.WriteAfterRead) {
		t.Fatalf("expected WriteAfterRead, got %v", err)
	}
	l, _ := diag.FromError(err)
	for _, d := range l {
		if d.Resource != pic(10) || d.Slot != 0 {
			t.Errorf("hazard not attributed to slot 0's region: %v", d)
		}
	}
	mustNil(t, "end", st.End())
}

func TestActivationThenOverwriteWithBarrier(t *testing.T) {
	st := newStream(t, decodeConfig(2, 1))

	mustNil(t, "begin", st.Begin([]dpb.Association{{Slot: 0}, {Slot: 1}}))
	mustNil(t, "first decode", st.Decode(decodeInto(0, 10)))
	mustNil(t, "second decode", st.Decode(decodeInto(1, 11, ReferenceSlot{Slot: 0, Resource: pic(10)})))
	st.Barrier(hazard.Barrier{Region: pic(10), Src: hazard.FullScope, Dst: hazard.FullScope})
	mustNil(t, "third decode", st.Decode(decodeInto(0, 10)))
}

func TestBeginCannotActivate(t *testing.T) {
	st := newStream(t, decodeConfig(2, 1))
	err := st.Begin([]dpb.Association{{Slot: 0, Resource: pic(10)}})
	wantKinds(t, "begin", err, diag.SlotInactiveReferenced)
	if s, _ := st.Slot(0); s.State != dpb.Inactive {
		t.Errorf("begin activated slot 0: %+v", s)
	}
	if !st.IsOpen() {
		t.Error("scope should be open despite association errors")
	}
}

func TestBeginReassertsEarlierActivation(t *testing.T) {
	st := newStream(t, decodeConfig(2, 1))
	mustNil(t, "begin", st.Begin(nil))
	mustNil(t, "decode", st.Decode(decodeInto(0, 10)))
	mustNil(t, "end", st.End())

	mustNil(t, "second begin", st.Begin([]dpb.Association{{Slot: 0, Resource: pic(10)}, {Slot: dpb.NoAssociation, Resource: pic(99)}}))
	mustNil(t, "end", st.End())

	wantKinds(t, "mismatched begin", st.Begin([]dpb.Association{{Slot: 0, Resource: pic(11)}}), diag.ResourceMismatch)
}

func TestNonReferenceSetupDoesNotActivate(t *testing.T) {
	st := newStream(t, decodeConfig(2, 1))
	mustNil(t, "begin", st.Begin(nil))
	op := decodeInto(0, 10)
	op.Setup.Reference = false
	mustNil(t, "decode", st.Decode(op))
	if s, _ := st.Slot(0); s.State != dpb.Inactive {
		t.Errorf("non-reference setup activated slot: %+v", s)
	}
	mustNil(t, "end", st.End())
	wantKinds(t, "begin", st.Begin([]dpb.Association{{Slot: 0, Resource: pic(10)}}), diag.SlotInactiveReferenced)
}

func TestNonReferenceSetupDeactivates(t *testing.T) {
	st := newStream(t, decodeConfig(2, 1))
	mustNil(t, "begin", st.Begin(nil))
	mustNil(t, "decode", st.Decode(decodeInto(0, 10)))
	op := decodeInto(0, 11)
	op.Setup.Reference = false
	mustNil(t, "decode", st.Decode(op))
	wantKinds(t, "reference", st.Decode(decodeInto(1, 12, ReferenceSlot{Slot: 0, Resource: pic(10)})), diag.SlotInactiveReferenced)
}

func TestCrossSlotAliasing(t *testing.T) {
	st := newStream(t, decodeConfig(3, 2))
	mustNil(t, "begin", st.Begin(nil))
	mustNil(t, "decode into 0", st.Decode(decodeInto(0, 10)))
	st.Barrier(hazard.Barrier{Region: pic(10), Src: hazard.FullScope, Dst: hazard.FullScope})
	mustNil(t, "decode into 1", st.Decode(decodeInto(1, 10)))

	op := decodeInto(2, 12, ReferenceSlot{Slot: 0, Resource: pic(10)}, ReferenceSlot{Slot: 1, Resource: pic(10)})
	wantKinds(t, "aliased references", st.Decode(op), diag.DuplicateReference)
}

func TestReferenceCountCap(t *testing.T) {
	tests := []struct {
		name  string
		slots uint32
		refs  []ReferenceSlot
	}{
		{
			name:  "two references",
			slots: 3,
			refs:  []ReferenceSlot{{0, pic(10)}, {1, pic(11)}},
		},
		{
			name:  "three references",
			slots: 4,
			refs:  []ReferenceSlot{{0, pic(10)}, {1, pic(11)}, {2, pic(12)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStream(t, decodeConfig(tt.slots, 1))
			mustNil(t, "begin", st.Begin(nil))
			for _, r := range tt.refs {
				mustNil(t, "activate", st.Decode(decodeInto(r.Slot, r.Resource.Handle)))
			}
			last := int32(tt.slots - 1)
			err := st.Decode(decodeInto(last, 20, tt.refs...))
			wantKinds(t, "decode", err, diag.TooManyReferences)
		})
	}
}

func TestReadYourWrites(t *testing.T) {
	st := newStream(t, decodeConfig(2, 1))
	mustNil(t, "begin", st.Begin(nil))
	mustNil(t, "decode", st.Decode(decodeInto(0, 10)))
	st.Barrier(hazard.Barrier{Region: pic(10), Src: hazard.FullScope, Dst: hazard.FullScope})
	mustNil(t, "decode", st.Decode(decodeInto(0, 11)))

	wantKinds(t, "stale reference", st.Decode(decodeInto(1, 12, ReferenceSlot{Slot: 0, Resource: pic(10)})), diag.ResourceMismatch)
	mustNil(t, "current reference", st.Decode(decodeInto(1, 12, ReferenceSlot{Slot: 0, Resource: pic(11)})))
}

func TestResetClearsEverything(t *testing.T) {
	st := newStream(t, decodeConfig(3, 2))
	mustNil(t, "begin", st.Begin(nil))
	mustNil(t, "decode", st.Decode(decodeInto(0, 10)))
	mustNil(t, "decode", st.Decode(decodeInto(1, 11)))
	mustNil(t, "reset", st.Control(Control{Reset: true}))

	for _, s := range st.Slots() {
		if s.State != dpb.Inactive {
			t.Errorf("slot %d still active after reset", s.Index)
		}
	}
	err := st.Decode(decodeInto(2, 12, ReferenceSlot{Slot: 0, Resource: pic(10)}, ReferenceSlot{Slot: 1, Resource: pic(11)}))
	wantKinds(t, "reference after reset", err, diag.SlotInactiveReferenced, diag.SlotInactiveReferenced)
}

func TestNoDuplicateSlots(t *testing.T) {
	st := newStream(t, decodeConfig(3, 3))
	mustNil(t, "begin", st.Begin(nil))
	mustNil(t, "decode", st.Decode(decodeInto(0, 10)))
	op := decodeInto(1, 11,
		ReferenceSlot{Slot: 0, Resource: pic(10)},
		ReferenceSlot{Slot: 0, Resource: pic(10)},
		ReferenceSlot{Slot: 0, Resource: pic(10)},
	)
	wantKinds(t, "decode", st.Decode(op), diag.DuplicateSlot)
}

func TestScopeStateMachine(t *testing.T) {
	st := newStream(t, decodeConfig(2, 1))

	wantKinds(t, "decode before begin", st.Decode(decodeInto(0, 10)), diag.ScopeNotOpen)
	wantKinds(t, "control before begin", st.Control(Control{Reset: true}), diag.ScopeNotOpen)
	wantKinds(t, "end before begin", st.End(), diag.ScopeNotOpen)

	mustNil(t, "begin", st.Begin(nil))
	wantKinds(t, "nested begin", st.Begin(nil), diag.ScopeAlreadyOpen)
	mustNil(t, "end", st.End())
	wantKinds(t, "double end", st.End(), diag.ScopeNotOpen)

	if s, _ := st.Slot(0); s.State != dpb.Inactive {
		t.Error("rejected decode changed slot state")
	}
}

func TestRejectedOperationHasNoEffect(t *testing.T) {
	ctx := NewContext(&dumbLogger{})
	s, err := ctx.NewSession(decodeConfig(2, 1))
	if err != nil {
		t.Fatal(err)
	}
	st := s.NewStream()
	mustNil(t, "begin", st.Begin(nil))

	op := decodeInto(0, 10)
	op.Bitstream = resource.Buffer(5, 0, 0)
	wantKinds(t, "decode", st.Decode(op), diag.InvalidResource)
	if s, _ := st.Slot(0); s.State != dpb.Inactive {
		t.Errorf("rejected operation activated slot: %+v", s)
	}
	if n := ctx.Hazards().Len(); n != 0 {
		t.Errorf("rejected operation tracked %d regions", n)
	}
}

func TestSessionConfigIsSnapshot(t *testing.T) {
	cfg := decodeConfig(2, 1)
	ctx := NewContext(&dumbLogger{})
	s, err := ctx.NewSession(cfg)
	if err != nil {
		t.Fatal(err)
	}
	cfg.MaxDPBSlots = 8
	if got := s.Config().MaxDPBSlots; got != 2 {
		t.Errorf("session config changed to %d slots", got)
	}
	if n := len(s.NewStream().Slots()); n != 2 {
		t.Errorf("stream has %d slots, want 2", n)
	}
}

// levelLogger records the levels it is set to.
type levelLogger struct {
	dumbLogger
	levels []int8
}

func (l *levelLogger) SetLevel(lvl int8) { l.levels = append(l.levels, lvl) }

func TestNewSessionWithoutLogger(t *testing.T) {
	cfg := decodeConfig(2, 1)
	cfg.Logger = nil
	cfg.LogLevel = logging.Debug
	shared := &levelLogger{}
	ctx := NewContext(shared)
	if _, err := ctx.NewSession(cfg); err != nil {
		t.Fatalf("session should use the context logger: %v", err)
	}
	if len(shared.levels) != 0 {
		t.Errorf("context logger level changed to %v", shared.levels)
	}

	own := &levelLogger{}
	cfg.Logger = own
	if _, err := ctx.NewSession(cfg); err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(own.levels, []int8{logging.Debug}) {
		t.Errorf("got levels %v for session logger, want [%d]", own.levels, logging.Debug)
	}
}

func TestStreamsOfOneSessionConflict(t *testing.T) {
	ctx := NewContext(&dumbLogger{})
	s, err := ctx.NewSession(decodeConfig(2, 1))
	if err != nil {
		t.Fatal(err)
	}
	s1, s2 := s.NewStream(), s.NewStream()
	mustNil(t, "begin 1", s1.Begin(nil))
	mustNil(t, "begin 2", s2.Begin(nil))

	mustNil(t, "decode 2", s2.Decode(decodeInto(0, 10)))
	wantKinds(t, "overwrite from 1", s1.Decode(decodeInto(0, 10)), diag.WriteAfterWrite)

	// Stream 2's reference observes stream 1's unsynchronized write.
	wantKinds(t, "reference from 2", s2.Decode(decodeInto(1, 11, ReferenceSlot{Slot: 0, Resource: pic(10)})), diag.ReadAfterWrite)
}

func TestCrossSessionHazards(t *testing.T) {
	ctx := NewContext(&dumbLogger{})
	a, err := ctx.NewSession(decodeConfig(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ctx.NewSession(decodeConfig(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	sa, sb := a.NewStream(), b.NewStream()
	shared := pic(50)

	mustNil(t, "begin a", sa.Begin(nil))
	mustNil(t, "begin b", sb.Begin(nil))

	opA := Operation{Setup: &SetupSlot{Slot: 0, Resource: pic(1), Reference: true}, Picture: shared, Bitstream: bitstream(7)}
	opB := Operation{Setup: &SetupSlot{Slot: 0, Resource: pic(2), Reference: true}, Picture: shared, Bitstream: bitstream(7)}
	mustNil(t, "decode a", sa.Decode(opA))
	wantKinds(t, "decode b", sb.Decode(opB), diag.WriteAfterWrite)

	a.Destroy()
	if ctx.Sessions() != 1 {
		t.Errorf("got %d live sessions, want 1", ctx.Sessions())
	}
	if _, ok := ctx.Hazards().Lookup(pic(1)); ok {
		t.Error("region exclusive to destroyed session still tracked")
	}
	if _, ok := ctx.Hazards().Lookup(shared); !ok {
		t.Error("region shared with live session no longer tracked")
	}
	if _, ok := ctx.Hazards().Lookup(bitstream(7)); !ok {
		t.Error("bitstream shared with live session no longer tracked")
	}
}

func TestDestroy(t *testing.T) {
	ctx := NewContext(&dumbLogger{})
	s, err := ctx.NewSession(decodeConfig(2, 1))
	if err != nil {
		t.Fatal(err)
	}
	st := s.NewStream()
	mustNil(t, "begin", st.Begin(nil))
	mustNil(t, "decode", st.Decode(decodeInto(0, 10)))

	s.Destroy()
	s.Destroy()
	if !s.Destroyed() {
		t.Fatal("session not destroyed")
	}
	for _, slot := range st.Slots() {
		if slot.State != dpb.Inactive {
			t.Errorf("slot %d active after destroy", slot.Index)
		}
	}
	if ctx.Hazards().Len() != 0 {
		t.Errorf("%d hazard records left after destroy", ctx.Hazards().Len())
	}
	wantKinds(t, "decode", st.Decode(decodeInto(0, 10)), diag.SessionDestroyed)
	wantKinds(t, "begin", st.Begin(nil), diag.SessionDestroyed)
	wantKinds(t, "end", st.End(), diag.SessionDestroyed)
	wantKinds(t, "control", st.Control(Control{}), diag.SessionDestroyed)
}

func TestHazardBarrierSymmetry(t *testing.T) {
	for _, barrier := range []bool{false, true} {
		st := newStream(t, decodeConfig(1, 0))
		mustNil(t, "begin", st.Begin(nil))
		mustNil(t, "decode", st.Decode(decodeInto(0, 10)))
		if barrier {
			st.Barrier(hazard.Barrier{
				Region: pic(10),
				Src:    hazard.Scope{Stages: hazard.StageDecode, Access: hazard.AccessWrite},
				Dst:    hazard.Scope{Stages: hazard.StageDecode, Access: hazard.AccessWrite},
			})
		}
		err := st.Decode(decodeInto(0, 10))
		if got := diag.Has(err, diag.WriteAfterWrite); got == barrier {
			t.Errorf("barrier=%v: WriteAfterWrite reported=%v, err: %v", barrier, got, err)
		}
	}
}
