// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package peerbook

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/embernode/ember/pkg/netaddr"
)

// State is the derived connectivity state of an entry. It is a pure
// function of which of the last attempt, success and handshake
// timestamps are set; the transitions keep that triple in exactly one
// of the four shapes below, so every entry is always in exactly one
// state.
type State int

const (
	// StateFresh means the endpoint has never been dialed.
	StateFresh State = iota
	// StateAttempted means the last dial did not succeed yet.
	StateAttempted
	// StateConnected means the endpoint is connected but the protocol
	// handshake has not completed.
	StateConnected
	// StateHandshaked means the endpoint completed the handshake on
	// the current connection.
	StateHandshaked
)

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateAttempted:
		return "attempted"
	case StateConnected:
		return "connected"
	case StateHandshaked:
		return "handshaked"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Entry tracks the connection history of a single remote endpoint.
// Entries are owned by the Book; all mutation goes through the Book's
// report operations, outside callers only ever hold snapshot copies.
//
// Unset timestamps are the zero time.
type Entry struct {
	endpoint           netaddr.Endpoint
	source             netip.Addr
	addressTime        time.Time
	connectionAttempts uint
	lastAttempt        time.Time
	lastSuccess        time.Time
	lastHandshake      time.Time
}

func newEntry(endpoint netaddr.Endpoint, source netip.Addr) *Entry {
	return &Entry{
		endpoint: endpoint,
		source:   source,
	}
}

// Endpoint returns the endpoint identifying this entry.
func (e Entry) Endpoint() netaddr.Endpoint { return e.endpoint }

// Source returns the address of the peer that informed us of this
// endpoint, or the loopback address for locally originated entries.
func (e Entry) Source() netip.Addr { return e.source }

// AddressTime returns the last time the endpoint was known to be live.
func (e Entry) AddressTime() time.Time { return e.addressTime }

// ConnectionAttempts returns the number of dial attempts since the
// last successful connection.
func (e Entry) ConnectionAttempts() uint { return e.connectionAttempts }

// LastAttempt returns the time of the last unsuccessful dial attempt.
func (e Entry) LastAttempt() time.Time { return e.lastAttempt }

// LastSuccess returns the time of the last successful connection.
func (e Entry) LastSuccess() time.Time { return e.lastSuccess }

// LastHandshake returns the time of the last completed handshake.
func (e Entry) LastHandshake() time.Time { return e.lastHandshake }

// State derives the connectivity state from the timestamp triple.
func (e Entry) State() State {
	switch {
	case !e.lastHandshake.IsZero():
		return StateHandshaked
	case !e.lastSuccess.IsZero():
		return StateConnected
	case !e.lastAttempt.IsZero():
		return StateAttempted
	default:
		return StateFresh
	}
}

// recordAttempt marks a dial attempt at the given time. Valid from any
// state, always lands in Attempted. The attempt counter accumulates
// across connections and handshakes; only a success resets it.
func (e *Entry) recordAttempt(at time.Time) {
	e.connectionAttempts++
	e.lastAttempt = at
	e.lastSuccess = time.Time{}
	e.lastHandshake = time.Time{}
}

// recordSuccess marks a successful connection at the given time. Valid
// from any state, always lands in Connected: the handshake timestamp
// of a previous connection is cleared, so a reconnected peer must
// complete a fresh handshake before it is Handshaked again. The
// liveness timestamp is written on the entry itself so it survives
// persistence.
func (e *Entry) recordSuccess(at time.Time) {
	e.addressTime = at
	e.lastSuccess = at
	e.lastAttempt = time.Time{}
	e.lastHandshake = time.Time{}
	e.connectionAttempts = 0
}

// recordHandshake marks a completed handshake at the given time. It is
// only valid immediately after a success; anything else would leave
// the timestamp triple in an illegal shape and is rejected.
func (e *Entry) recordHandshake(at time.Time) error {
	if e.lastSuccess.IsZero() || !e.lastAttempt.IsZero() {
		return fmt.Errorf("%w: handshake from state %s", ErrInvalidTransition, e.State())
	}
	e.lastHandshake = at
	return nil
}

// shapeLegal reports whether the timestamp triple is one of the four
// reachable shapes. Entries built by the transitions always are; it
// guards entries rebuilt from persisted records.
func (e *Entry) shapeLegal() bool {
	if !e.lastAttempt.IsZero() {
		return e.lastSuccess.IsZero() && e.lastHandshake.IsZero()
	}
	if e.lastSuccess.IsZero() {
		return e.lastHandshake.IsZero()
	}
	return true
}
