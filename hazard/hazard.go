/*
NAME
  hazard.go

DESCRIPTION
  hazard.go provides the hazard tracker, which records the last write and
  active reads of every accessed resource region and reports conflicting
  accesses that were not separated by a covering barrier.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package hazard provides a static, submission order hazard checker for
// resource regions accessed by recorded coding operations. It does not look
// at execution timing; it answers whether a recorded sequence is safe to
// execute without further synchronization.
package hazard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ausocean/vidval/diag"
	"github.com/ausocean/vidval/resource"
)

// Stage is a set of pipeline stages.
type Stage uint8

// Pipeline stages.
const (
	StageDecode Stage = 1 << iota
	StageEncode
	StageTransfer
	StageHost

	StageAll = StageDecode | StageEncode | StageTransfer | StageHost
)

func (s Stage) String() string {
	var names []string
	for _, v := range []struct {
		s    Stage
		name string
	}{
		{StageDecode, "decode"},
		{StageEncode, "encode"},
		{StageTransfer, "transfer"},
		{StageHost, "host"},
	} {
		if s&v.s != 0 {
			names = append(names, v.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Access is a set of access kinds.
type Access uint8

// Access kinds.
const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read|write"
	default:
		return "none"
	}
}

// Scope is one side of a barrier's synchronization scope.
type Scope struct {
	Stages Stage
	Access Access
}

// FullScope covers every stage and access kind.
var FullScope = Scope{Stages: StageAll, Access: AccessReadWrite}

// Barrier synchronizes accesses to Region in the Src scope that were
// recorded before it with accesses in the Dst scope recorded after it.
type Barrier struct {
	Region resource.ID
	Src    Scope
	Dst    Scope
}

// OpRef identifies a recorded operation.
type OpRef struct {
	Session uuid.UUID
	Stream  uint32
	Seq     uint64 // Position in the recording order of the whole context.
}

func (o OpRef) String() string {
	return fmt.Sprintf("op %d (session %s stream %d)", o.Seq, o.Session, o.Stream)
}

// Use is one region accessed by an operation.
type Use struct {
	Region resource.ID
	Access Access
	Slot   int32 // DPB slot the region is used through, or diag.NoSlot.

	// DPB marks reconstructed picture writes and reference picture reads.
	// A DPB read is ordered after a DPB write made by the same stream, the
	// way a reference observes the picture its slot was activated with.
	DPB bool
}

type access struct {
	op    OpRef
	stage Stage
	dpb   bool
}

type read struct {
	access
	safeFor Stage // Stages whose writes are ordered after this read.
}

type record struct {
	write        *access
	visibleRead  Stage // Stages whose reads see the last write.
	visibleWrite Stage // Stages whose writes are ordered after the last write.
	reads        []read
	owners       map[uuid.UUID]struct{}
}

// Snapshot is a read-only view of a region's record.
type Snapshot struct {
	LastWrite *OpRef
	Reads     []OpRef
	Owners    int
}

// Tracker holds the records of every tracked region. Records are keyed by
// region alone so that accesses recorded by different sessions and streams
// are checked against each other. Regions are matched by exact identity;
// overlapping ranges of one handle are distinct regions. Tracker is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	records map[resource.ID]*record
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{records: make(map[resource.ID]*record)}
}

// Len returns the number of tracked regions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Lookup returns a snapshot of the record for region r.
func (t *Tracker) Lookup(r resource.ID) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[r]
	if !ok {
		return Snapshot{}, false
	}
	var s Snapshot
	if rec.write != nil {
		op := rec.write.op
		s.LastWrite = &op
	}
	for _, rd := range rec.reads {
		s.Reads = append(s.Reads, rd.op)
	}
	s.Owners = len(rec.owners)
	return s, true
}

// Access checks the uses of operation op, executing in stage, against the
// tracked records and then records them. A region used more than once is
// checked once with the union of its access kinds; a region both read and
// written is treated as written. Records are updated even when hazards are
// reported.
func (t *Tracker) Access(op OpRef, stage Stage, uses []Use) diag.List {
	t.mu.Lock()
	defer t.mu.Unlock()

	var diags diag.List
	for _, u := range merge(uses) {
		if u.Region.IsNull() {
			continue
		}
		rec := t.records[u.Region]
		if rec == nil {
			rec = &record{owners: make(map[uuid.UUID]struct{})}
			t.records[u.Region] = rec
		}
		rec.owners[op.Session] = struct{}{}

		a := access{op: op, stage: stage, dpb: u.DPB}
		if u.Access&AccessWrite != 0 {
			diags = append(diags, rec.checkWrite(u, a)...)
			rec.write = &a
			rec.visibleRead, rec.visibleWrite = 0, 0
			rec.reads = rec.reads[:0]
			continue
		}
		diags = append(diags, rec.checkRead(u, a)...)
		rec.reads = append(rec.reads, read{access: a})
	}
	return diags
}

func (r *record) checkWrite(u Use, a access) diag.List {
	var diags diag.List
	if r.write != nil && r.visibleWrite&a.stage == 0 {
		diags.Add(diag.WriteAfterWrite, u.Slot, u.Region, "%s writes in %s stage after unsynchronized write by %s", a.op, a.stage, r.write.op)
	}
	for _, rd := range r.reads {
		if rd.safeFor&a.stage == 0 {
			diags.Add(diag.WriteAfterRead, u.Slot, u.Region, "%s writes in %s stage after unsynchronized read by %s", a.op, a.stage, rd.op)
			break
		}
	}
	return diags
}

func (r *record) checkRead(u Use, a access) diag.List {
	w := r.write
	if w == nil || r.visibleRead&a.stage != 0 {
		return nil
	}
	if a.dpb && w.dpb && w.op.Session == a.op.Session && w.op.Stream == a.op.Stream {
		return nil
	}
	var diags diag.List
	diags.Add(diag.ReadAfterWrite, u.Slot, u.Region, "%s reads in %s stage after unsynchronized write by %s", a.op, a.stage, w.op)
	return diags
}

// merge folds repeated regions together, keeping first-use order.
func merge(uses []Use) []Use {
	out := make([]Use, 0, len(uses))
	idx := make(map[resource.ID]int, len(uses))
	for _, u := range uses {
		i, ok := idx[u.Region]
		if !ok {
			idx[u.Region] = len(out)
			out = append(out, u)
			continue
		}
		m := &out[i]
		if u.Access&AccessWrite != 0 && m.Access&AccessWrite == 0 {
			m.Slot = u.Slot
			m.DPB = u.DPB
		}
		m.Access |= u.Access
		if m.Slot == diag.NoSlot {
			m.Slot = u.Slot
		}
	}
	return out
}

// Barrier applies b. A barrier whose source and destination scopes are both
// full clears the region's record; narrower barriers only synchronize the
// accesses and later stages they name. Barriers on untracked regions have
// no effect.
func (t *Tracker) Barrier(b Barrier) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[b.Region]
	if !ok {
		return
	}
	if b.Src == FullScope && b.Dst == FullScope {
		rec.write = nil
		rec.visibleRead, rec.visibleWrite = 0, 0
		rec.reads = nil
		return
	}

	if rec.write != nil && b.Src.Stages&rec.write.stage != 0 && b.Src.Access&AccessWrite != 0 {
		if b.Dst.Access&AccessRead != 0 {
			rec.visibleRead |= b.Dst.Stages
		}
		if b.Dst.Access&AccessWrite != 0 {
			rec.visibleWrite |= b.Dst.Stages
		}
	}

	// Write-after-read needs only an execution dependency.
	for i := range rec.reads {
		if b.Src.Stages&rec.reads[i].stage != 0 {
			rec.reads[i].safeFor |= b.Dst.Stages
		}
	}
}

// Release removes owner from every record and discards the records no other
// session has accessed. It returns the number of discarded records.
func (t *Tracker) Release(owner uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int
	for id, rec := range t.records {
		if _, ok := rec.owners[owner]; !ok {
			continue
		}
		delete(rec.owners, owner)
		if len(rec.owners) == 0 {
			delete(t.records, id)
			n++
		}
	}
	return n
}
