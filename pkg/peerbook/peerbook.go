// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package peerbook tracks, for every endpoint the node has ever heard
// about, how trustworthy and reachable it currently is. The Book owns
// all entries and is the single serialization point for their state
// transitions; the connection layer asks it for dial candidates and
// reports dial outcomes back, and the node persists the collection
// through the statestore across restarts.
package peerbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/embernode/ember/pkg/logging"
	"github.com/embernode/ember/pkg/netaddr"
	"github.com/embernode/ember/pkg/storage"
)

// keyPrefix is prepended to the endpoint token to form the statestore
// key of a persisted entry.
const keyPrefix = "peerbook_entry_"

var (
	// ErrUnknownEndpoint is returned when an outcome is reported for an
	// endpoint that was never added. It indicates a collaborator bug:
	// the connection layer reported a connection the book never issued.
	ErrUnknownEndpoint = errors.New("peerbook: unknown endpoint")

	// ErrInvalidTransition is returned when a reported outcome would
	// leave an entry's timestamps in an illegal shape.
	ErrInvalidTransition = errors.New("peerbook: invalid transition")
)

// Book is the peer address book. All methods are safe for concurrent
// use; transitions on the same endpoint never interleave and snapshots
// never observe a torn entry.
type Book struct {
	mtx     sync.Mutex
	entries map[netaddr.Endpoint]*Entry

	stateStore storage.StateStorer
	logger     logging.Logger
	metrics    metrics

	started bool
	closed  bool
}

// New constructs an empty Book persisting through the given statestore.
// A nil statestore keeps the book purely in memory.
func New(stateStore storage.StateStorer, logger logging.Logger) *Book {
	return &Book{
		entries:    make(map[netaddr.Endpoint]*Entry),
		stateStore: stateStore,
		logger:     logger,
		metrics:    newMetrics(),
	}
}

// Add inserts a new Fresh entry for the endpoint, recording which peer
// it was learned from. It reports whether the entry was inserted; an
// endpoint already present keeps its history untouched. The zero
// endpoint is not addable.
func (b *Book) Add(endpoint netaddr.Endpoint, source netip.Addr) bool {
	if endpoint.IsZero() {
		return false
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	if _, ok := b.entries[endpoint]; ok {
		return false
	}

	b.entries[endpoint] = newEntry(endpoint, source)
	b.metrics.EntriesAdded.Inc()
	b.metrics.KnownEntries.Set(float64(len(b.entries)))
	return true
}

// Get returns a snapshot copy of the entry for the endpoint.
func (b *Book) Get(endpoint netaddr.Endpoint) (Entry, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	e, ok := b.entries[endpoint]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of known endpoints.
func (b *Book) Len() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return len(b.entries)
}

// Endpoints returns all known endpoints in no particular order.
func (b *Book) Endpoints() []netaddr.Endpoint {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	endpoints := make([]netaddr.Endpoint, 0, len(b.entries))
	for endpoint := range b.entries {
		endpoints = append(endpoints, endpoint)
	}
	return endpoints
}

// ReportAttempt records a dial attempt against the endpoint.
func (b *Book) ReportAttempt(endpoint netaddr.Endpoint, at time.Time) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	e, ok := b.entries[endpoint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	e.recordAttempt(at)
	b.metrics.AttemptsRecorded.Inc()
	return nil
}

// ReportSuccess records a successful connection to the endpoint.
func (b *Book) ReportSuccess(endpoint netaddr.Endpoint, at time.Time) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	e, ok := b.entries[endpoint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	e.recordSuccess(at)
	b.metrics.SuccessesRecorded.Inc()
	return nil
}

// ReportHandshake records a completed handshake with the endpoint. It
// fails with ErrInvalidTransition unless the endpoint has a current
// successful connection.
func (b *Book) ReportHandshake(endpoint netaddr.Endpoint, at time.Time) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	e, ok := b.entries[endpoint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	if err := e.recordHandshake(at); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	b.metrics.HandshakesRecorded.Inc()
	return nil
}

// SelectCandidate returns an endpoint eligible for a fresh outbound
// dial, or false when there is none. Handshaked endpoints are never
// returned. Among the rest the entry with the fewest connection
// attempts wins, oldest last attempt breaking that tie, so Fresh and
// long-unattempted endpoints are dialed first; remaining ties are
// broken uniformly at random.
func (b *Book) SelectCandidate() (netaddr.Endpoint, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	var (
		best []netaddr.Endpoint
		lead *Entry
	)
	for endpoint, e := range b.entries {
		if e.State() == StateHandshaked {
			continue
		}
		if lead == nil || betterCandidate(e, lead) {
			lead = e
			best = best[:0]
		}
		if e.connectionAttempts == lead.connectionAttempts && e.lastAttempt.Equal(lead.lastAttempt) {
			best = append(best, endpoint)
		}
	}

	if len(best) == 0 {
		b.metrics.SelectionsEmpty.Inc()
		return netaddr.Endpoint{}, false
	}

	b.metrics.CandidatesSelected.Inc()
	return best[rand.Intn(len(best))], true
}

// betterCandidate reports whether a is strictly preferable to b for
// the next outbound dial.
func betterCandidate(a, b *Entry) bool {
	if a.connectionAttempts != b.connectionAttempts {
		return a.connectionAttempts < b.connectionAttempts
	}
	return a.lastAttempt.Before(b.lastAttempt)
}

// Snapshot returns the persisted form of every entry, ordered by
// endpoint token.
func (b *Book) Snapshot() []Record {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	records := make([]Record, 0, len(b.entries))
	for _, e := range b.entries {
		records = append(records, recordFromEntry(e))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Endpoint.String() < records[j].Endpoint.String()
	})
	return records
}

// Load rebuilds the collection from persisted records, replacing the
// current one. Records that cannot be restored, for a malformed
// endpoint token, an illegal timestamp shape or a duplicate endpoint,
// are skipped and counted, not fatal to the load. Of duplicates the
// first record wins.
func (b *Book) Load(records []Record) (skipped int, err error) {
	entries := make(map[netaddr.Endpoint]*Entry, len(records))
	for _, r := range records {
		e, err := entryFromRecord(r)
		if err != nil {
			skipped++
			b.metrics.RecordsSkipped.Inc()
			b.logger.Debugf("peerbook: skipping record: %v", err)
			continue
		}
		if _, ok := entries[e.endpoint]; ok {
			skipped++
			b.metrics.RecordsSkipped.Inc()
			b.logger.Debugf("peerbook: skipping duplicate record for %s", e.endpoint)
			continue
		}
		entries[e.endpoint] = e
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.entries = entries
	b.metrics.RecordsLoaded.Add(float64(len(entries)))
	b.metrics.KnownEntries.Set(float64(len(b.entries)))
	return skipped, nil
}

// Start loads the persisted collection from the statestore. An empty
// or missing collection is not an error. Start is idempotent.
func (b *Book) Start() error {
	b.mtx.Lock()
	if b.started {
		b.mtx.Unlock()
		return nil
	}
	b.started = true
	b.mtx.Unlock()

	if b.stateStore == nil {
		return nil
	}

	var (
		records []Record
		skipped int
	)
	err := b.stateStore.Iterate(keyPrefix, func(key, value []byte) (bool, error) {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			skipped++
			b.metrics.RecordsSkipped.Inc()
			b.logger.Debugf("peerbook: skipping stored record %s: %v", string(key), err)
			return false, nil
		}
		records = append(records, r)
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("peerbook: load collection: %w", err)
	}

	n, err := b.Load(records)
	if err != nil {
		return err
	}
	skipped += n

	if skipped > 0 {
		b.logger.Warningf("peerbook: loaded %d entries, skipped %d malformed records", b.Len(), skipped)
	} else {
		b.logger.Infof("peerbook: loaded %d entries", b.Len())
	}
	return nil
}

// Flush persists the current snapshot to the statestore and removes
// stored records for endpoints no longer present.
func (b *Book) Flush() error {
	if b.stateStore == nil {
		return nil
	}

	records := b.Snapshot()

	keep := make(map[string]struct{}, len(records))
	for _, r := range records {
		key := keyPrefix + r.Endpoint.String()
		keep[key] = struct{}{}
		if err := b.stateStore.Put(key, r); err != nil {
			return fmt.Errorf("peerbook: persist %s: %w", r.Endpoint, err)
		}
		b.metrics.RecordsPersisted.Inc()
	}

	var stale []string
	err := b.stateStore.Iterate(keyPrefix, func(key, _ []byte) (bool, error) {
		if _, ok := keep[string(key)]; !ok {
			stale = append(stale, string(key))
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("peerbook: scan stale records: %w", err)
	}
	for _, key := range stale {
		if err := b.stateStore.Delete(key); err != nil {
			return fmt.Errorf("peerbook: delete stale record %s: %w", key, err)
		}
	}

	return nil
}

// Close persists the current snapshot. It is idempotent and safe to
// call on a book that was never started.
func (b *Book) Close() error {
	b.mtx.Lock()
	if b.closed {
		b.mtx.Unlock()
		return nil
	}
	b.closed = true
	b.mtx.Unlock()

	return b.Flush()
}
