// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package netaddr exposes the Endpoint type which identifies a remote
// peer by its network address and port, together with the delimited
// token codec used by the address book persistence layer.
package netaddr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Delimiter separates the address and port fields of an endpoint token.
// It can never occur inside the textual form of a parsed address, which
// keeps the token grammar unambiguous.
const Delimiter = "|"

var ErrMalformedEndpoint = errors.New("malformed endpoint")

// Endpoint is an (address, port) pair identifying a remote peer.
// An Endpoint without a valid address is the empty sentinel; it has no
// textual token representation. Endpoints are comparable and hashable
// with ==, matching address and port exactly. IPv4 and
// IPv4-mapped-IPv6 forms of the same address are distinct endpoints.
type Endpoint struct {
	addr netip.Addr
	port uint16
}

// New constructs an Endpoint from an address and port.
func New(addr netip.Addr, port uint16) Endpoint {
	return Endpoint{addr: addr, port: port}
}

// Parse decodes an endpoint token of the form "<address>|<port>".
// An empty token decodes to the zero Endpoint. The token is split on
// the first delimiter; anything that does not yield a valid address
// and a decimal port in range is reported as ErrMalformedEndpoint.
func Parse(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}, nil
	}

	addrText, portText, found := strings.Cut(s, Delimiter)
	if !found {
		return Endpoint{}, fmt.Errorf("%w: missing delimiter in %q", ErrMalformedEndpoint, s)
	}

	addr, err := netip.ParseAddr(addrText)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: address %q: %v", ErrMalformedEndpoint, addrText, err)
	}

	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: port %q: %v", ErrMalformedEndpoint, portText, err)
	}

	return Endpoint{addr: addr, port: uint16(port)}, nil
}

// MustParse decodes an endpoint token and panics on malformed input.
// It is convenient for test and fixture declarations.
func MustParse(s string) Endpoint {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

// Addr returns the endpoint network address.
func (e Endpoint) Addr() netip.Addr {
	return e.addr
}

// Port returns the endpoint port.
func (e Endpoint) Port() uint16 {
	return e.port
}

// IsZero reports whether e is the empty sentinel. An endpoint without
// a valid address has no encodable token and counts as empty whatever
// its port.
func (e Endpoint) IsZero() bool {
	return !e.addr.IsValid()
}

// Equal reports whether both endpoints hold the same address and port.
func (e Endpoint) Equal(o Endpoint) bool {
	return e == o
}

// String encodes the endpoint as its "<address>|<port>" token. The
// zero Endpoint has no token and encodes to the empty string; callers
// persisting endpoints must omit the field rather than store it.
func (e Endpoint) String() string {
	if e.IsZero() {
		return ""
	}
	return e.addr.String() + Delimiter + strconv.FormatUint(uint64(e.port), 10)
}

// MarshalJSON encodes the endpoint token as a JSON string, or null for
// the empty sentinel. A zero-port token is never produced for the
// sentinel.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(e.String())
}

// UnmarshalJSON decodes a JSON string token, or null into the empty
// sentinel.
func (e *Endpoint) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*e = Endpoint{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)
	}

	v, err := Parse(s)
	if err != nil {
		return err
	}

	*e = v
	return nil
}
