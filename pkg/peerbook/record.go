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

// Record is the persisted form of an entry. Optional timestamps are
// omitted entirely when unset to keep the format compact; the endpoint
// is stored as its "<address>|<port>" token.
type Record struct {
	Endpoint                netaddr.Endpoint `json:"endpoint"`
	AddressTime             *time.Time       `json:"addressTime,omitempty"`
	Source                  netip.Addr       `json:"source"`
	ConnectionAttempts      uint             `json:"connectionAttempts"`
	LastConnectionAttempt   *time.Time       `json:"lastConnectionAttempt,omitempty"`
	LastConnectionSuccess   *time.Time       `json:"lastConnectionSuccess,omitempty"`
	LastConnectionHandshake *time.Time       `json:"lastConnectionHandshake,omitempty"`
}

func recordFromEntry(e *Entry) Record {
	return Record{
		Endpoint:                e.endpoint,
		AddressTime:             optionalTime(e.addressTime),
		Source:                  e.source,
		ConnectionAttempts:      e.connectionAttempts,
		LastConnectionAttempt:   optionalTime(e.lastAttempt),
		LastConnectionSuccess:   optionalTime(e.lastSuccess),
		LastConnectionHandshake: optionalTime(e.lastHandshake),
	}
}

func entryFromRecord(r Record) (*Entry, error) {
	if r.Endpoint.IsZero() {
		return nil, fmt.Errorf("%w: record without endpoint", netaddr.ErrMalformedEndpoint)
	}
	if !r.Source.IsValid() {
		return nil, fmt.Errorf("record %s: missing source", r.Endpoint)
	}

	e := &Entry{
		endpoint:           r.Endpoint,
		source:             r.Source,
		addressTime:        timeValue(r.AddressTime),
		connectionAttempts: r.ConnectionAttempts,
		lastAttempt:        timeValue(r.LastConnectionAttempt),
		lastSuccess:        timeValue(r.LastConnectionSuccess),
		lastHandshake:      timeValue(r.LastConnectionHandshake),
	}

	if !e.shapeLegal() {
		return nil, fmt.Errorf("record %s: %w: illegal timestamp shape", r.Endpoint, ErrInvalidTransition)
	}

	return e, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
