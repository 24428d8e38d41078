// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storage defines the state storage abstraction used by node
// subsystems to persist small keyed values across restarts.
package storage

import (
	"errors"
	"io"
)

// ErrNotFound is returned when no value is found for a requested key.
var ErrNotFound = errors.New("storage: not found")

// StateStorer defines methods required to get, set, delete values for
// different keys and close the underlying resources.
type StateStorer interface {
	Get(key string, i interface{}) (err error)
	Put(key string, i interface{}) (err error)
	Delete(key string) (err error)
	Iterate(prefix string, iterFunc StateIterFunc) (err error)
	io.Closer
}

// StateIterFunc is used when iterating through StateStorer key/value pairs.
type StateIterFunc func(key, value []byte) (stop bool, err error)
