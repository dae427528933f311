/*
NAME
  tracker.go

DESCRIPTION
  tracker.go provides the tracker context and coding sessions. A context
  owns the hazard records shared by all of its sessions; a session owns an
  immutable configuration snapshot and the command streams recorded against
  it.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package tracker validates recorded video coding command streams. It keeps
// the DPB slot state of every stream, checks each Begin, Control, Decode,
// Encode and End call against that state and the session limits, and checks
// resource accesses for hazards across every stream of a Context.
package tracker

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"

	"github.com/ausocean/vidval/dpb"
	"github.com/ausocean/vidval/hazard"
	"github.com/ausocean/vidval/tracker/config"
)

// Context is the device level owner of sessions. Sessions of the same
// context share hazard records, so accesses to a resource by different
// sessions are checked against each other.
type Context struct {
	log     logging.Logger
	hazards *hazard.Tracker

	seq     atomic.Uint64 // Recording order of operations across the context.
	streams atomic.Uint32

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewContext returns a new Context logging to l.
func NewContext(l logging.Logger) *Context {
	return &Context{
		log:      l,
		hazards:  hazard.New(),
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Hazards returns the context's hazard tracker.
func (c *Context) Hazards() *hazard.Tracker { return c.hazards }

// Sessions returns the number of live sessions.
func (c *Context) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// NewSession validates cfg and creates a session from a copy of it. Later
// changes to cfg do not affect the session. cfg.LogLevel is applied to
// cfg.Logger only; a session without its own logger shares the context
// logger at the context's level.
func (c *Context) NewSession(cfg config.Config) (*Session, error) {
	own := cfg.Logger != nil
	if !own {
		cfg.Logger = c.log
	}
	cfg.Logger.Debug("validating config")
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("config struct is bad: %w", err)
	}
	if own {
		cfg.Logger.SetLevel(cfg.LogLevel)
	}

	s := &Session{id: uuid.New(), cfg: cfg, ctx: c}
	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	c.log.Info("session created",
		"session", s.id.String(),
		"operation", cfg.Operation.String(),
		"maxDPBSlots", cfg.MaxDPBSlots,
		"maxActiveReferences", cfg.MaxActiveReferences,
	)
	return s, nil
}

// Session is a coding session.
type Session struct {
	id  uuid.UUID
	cfg config.Config
	ctx *Context

	destroyed atomic.Bool

	mu      sync.Mutex
	streams []*Stream
}

// ID returns the session's identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Config returns a copy of the session's configuration.
func (s *Session) Config() config.Config { return s.cfg }

// Destroyed reports whether Destroy has been called.
func (s *Session) Destroyed() bool { return s.destroyed.Load() }

// NewStream returns a new command stream recorded against the session. The
// stream has its own slot table, sized from the session configuration, and
// its own coding scope.
func (s *Session) NewStream() *Stream {
	st := &Stream{
		id:      s.ctx.streams.Add(1),
		session: s,
		slots:   dpb.New(s.cfg.MaxDPBSlots),
		log:     s.cfg.Logger,
	}
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.mu.Unlock()
	return st
}

// Destroy ends the session. Every slot of every stream becomes inactive, any
// open scope is closed, and hazard records of regions no other live session
// has accessed are discarded. Destroy must not be called while one of the
// session's streams is recording. Destroying twice has no further effect.
func (s *Session) Destroy() {
	if s.destroyed.Swap(true) {
		return
	}

	s.mu.Lock()
	for _, st := range s.streams {
		st.slots.Reset()
		st.open = false
	}
	s.mu.Unlock()

	n := s.ctx.hazards.Release(s.id)

	s.ctx.mu.Lock()
	delete(s.ctx.sessions, s.id)
	s.ctx.mu.Unlock()

	s.ctx.log.Info("session destroyed", "session", s.id.String(), "discardedRecords", n)
}
