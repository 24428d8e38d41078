// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package peerbook

import (
	"errors"
	"math/rand"
	"net/netip"
	"testing"
	"time"

	"github.com/embernode/ember/pkg/netaddr"
)

var (
	testEndpoint = netaddr.MustParse("203.0.113.5|8333")
	testSource   = netip.MustParseAddr("127.0.0.1")
)

func TestEntryLifecycle(t *testing.T) {
	e := newEntry(testEndpoint, testSource)

	if s := e.State(); s != StateFresh {
		t.Fatalf("new entry state %s, want %s", s, StateFresh)
	}
	if n := e.ConnectionAttempts(); n != 0 {
		t.Fatalf("new entry has %d attempts, want 0", n)
	}

	t1 := time.Now()
	e.recordAttempt(t1)
	if n := e.ConnectionAttempts(); n != 1 {
		t.Fatalf("got %d attempts, want 1", n)
	}
	if s := e.State(); s != StateAttempted {
		t.Fatalf("state %s, want %s", s, StateAttempted)
	}

	t2 := t1.Add(time.Second)
	e.recordAttempt(t2)
	if n := e.ConnectionAttempts(); n != 2 {
		t.Fatalf("got %d attempts, want 2", n)
	}
	if !e.LastAttempt().Equal(t2) {
		t.Fatalf("last attempt %v, want %v", e.LastAttempt(), t2)
	}
	if s := e.State(); s != StateAttempted {
		t.Fatalf("state %s, want %s", s, StateAttempted)
	}

	t3 := t2.Add(time.Second)
	e.recordSuccess(t3)
	if n := e.ConnectionAttempts(); n != 0 {
		t.Fatalf("success did not reset attempts, got %d", n)
	}
	if !e.LastAttempt().IsZero() {
		t.Fatal("success did not clear last attempt")
	}
	if !e.LastSuccess().Equal(t3) {
		t.Fatalf("last success %v, want %v", e.LastSuccess(), t3)
	}
	if !e.AddressTime().Equal(t3) {
		t.Fatalf("address time %v, want %v", e.AddressTime(), t3)
	}
	if s := e.State(); s != StateConnected {
		t.Fatalf("state %s, want %s", s, StateConnected)
	}

	t4 := t3.Add(time.Second)
	if err := e.recordHandshake(t4); err != nil {
		t.Fatal(err)
	}
	if !e.LastHandshake().Equal(t4) {
		t.Fatalf("last handshake %v, want %v", e.LastHandshake(), t4)
	}
	if s := e.State(); s != StateHandshaked {
		t.Fatalf("state %s, want %s", s, StateHandshaked)
	}
}

// A handshaked peer that drops and is dialed again keeps accumulating
// attempts until the next success resets the counter.
func TestAttemptCounterAccumulates(t *testing.T) {
	e := newEntry(testEndpoint, testSource)
	at := time.Now()

	e.recordAttempt(at)
	e.recordSuccess(at.Add(time.Second))
	if err := e.recordHandshake(at.Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}

	e.recordAttempt(at.Add(3 * time.Second))
	e.recordAttempt(at.Add(4 * time.Second))
	if n := e.ConnectionAttempts(); n != 3 {
		t.Fatalf("got %d attempts, want 3", n)
	}
	if s := e.State(); s != StateAttempted {
		t.Fatalf("state %s, want %s", s, StateAttempted)
	}

	e.recordSuccess(at.Add(5 * time.Second))
	if n := e.ConnectionAttempts(); n != 0 {
		t.Fatalf("got %d attempts after success, want 0", n)
	}
}

// A reconnect after a completed handshake lands in Connected, not
// Handshaked: the stale handshake timestamp is cleared and the peer
// must handshake again.
func TestSuccessClearsStaleHandshake(t *testing.T) {
	e := newEntry(testEndpoint, testSource)
	at := time.Now()

	e.recordSuccess(at)
	if err := e.recordHandshake(at.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if s := e.State(); s != StateHandshaked {
		t.Fatalf("state %s, want %s", s, StateHandshaked)
	}

	e.recordSuccess(at.Add(time.Minute))
	if s := e.State(); s != StateConnected {
		t.Fatalf("state after reconnect %s, want %s", s, StateConnected)
	}
	if !e.LastHandshake().IsZero() {
		t.Fatal("reconnect did not clear the stale handshake timestamp")
	}
}

func TestHandshakeInvalidTransitions(t *testing.T) {
	at := time.Now()

	fresh := newEntry(testEndpoint, testSource)
	if err := fresh.recordHandshake(at); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("handshake from fresh: got %v, want ErrInvalidTransition", err)
	}
	if s := fresh.State(); s != StateFresh {
		t.Fatalf("rejected handshake corrupted state to %s", s)
	}

	attempted := newEntry(testEndpoint, testSource)
	attempted.recordAttempt(at)
	if err := attempted.recordHandshake(at.Add(time.Second)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("handshake from attempted: got %v, want ErrInvalidTransition", err)
	}
	if s := attempted.State(); s != StateAttempted {
		t.Fatalf("rejected handshake corrupted state to %s", s)
	}
}

// Whatever sequence of transitions is applied, the timestamp triple
// stays in one of the four legal shapes.
func TestShapeInvariantHolds(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	e := newEntry(testEndpoint, testSource)
	at := time.Now()

	for i := 0; i < 1000; i++ {
		at = at.Add(time.Duration(rnd.Intn(1000)+1) * time.Millisecond)
		switch rnd.Intn(3) {
		case 0:
			e.recordAttempt(at)
		case 1:
			e.recordSuccess(at)
		case 2:
			// may be rejected, must never corrupt
			_ = e.recordHandshake(at)
		}

		if !e.shapeLegal() {
			t.Fatalf("illegal shape after %d transitions: attempt=%v success=%v handshake=%v",
				i+1, e.lastAttempt, e.lastSuccess, e.lastHandshake)
		}
		switch e.State() {
		case StateFresh, StateAttempted, StateConnected, StateHandshaked:
		default:
			t.Fatalf("unexpected state %s", e.State())
		}
	}
}
