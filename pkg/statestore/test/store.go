// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package test provides the shared statestore test suite run against
// every statestore implementation.
package test

import (
	"encoding/json"
	"testing"

	"github.com/embernode/ember/pkg/storage"

	"github.com/google/go-cmp/cmp"
)

const (
	key1 = "key1" // stores the serialized type
	key2 = "key2" // stores a json array
)

var (
	value1 = &serializing{value: "value1"}
	value2 = []string{"a", "b", "c"}
)

type serializing struct {
	value           string
	marshalCalled   bool
	unmarshalCalled bool
}

func (st *serializing) MarshalBinary() (data []byte, err error) {
	d := []byte(st.value)
	st.marshalCalled = true

	return d, nil
}

func (st *serializing) UnmarshalBinary(data []byte) (err error) {
	st.value = string(data)
	st.unmarshalCalled = true
	return nil
}

// Run exercises put/get, delete and prefix iteration against a fresh
// store produced by f.
func Run(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	t.Helper()

	testPutGet(t, f)
	testDelete(t, f)
	testIterator(t, f)
}

// RunPersist verifies that values written to a store in a directory
// survive closing and reopening it.
func RunPersist(t *testing.T, f func(t *testing.T, dir string) storage.StateStorer) {
	t.Helper()

	dir := t.TempDir()

	store := f(t, dir)
	insertValues(t, store)

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store = f(t, dir)
	defer store.Close()

	testPersistedValues(t, store)
}

func testPutGet(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	t.Helper()

	store := f(t)

	insertValues(t, store)
	testPersistedValues(t, store)
}

func testDelete(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	t.Helper()

	store := f(t)

	insertValues(t, store)

	if err := store.Delete(key1); err != nil {
		t.Fatal(err)
	}

	v := &serializing{}
	if err := store.Get(key1, v); err != storage.ErrNotFound {
		t.Fatalf("got error %v, want %v", err, storage.ErrNotFound)
	}
}

func testIterator(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	t.Helper()

	store := f(t)

	storePrefix := "test_"
	if err := store.Put(storePrefix+"key1", "value1"); err != nil {
		t.Fatal(err)
	}

	// do not include prefix in one of the entries
	if err := store.Put("key2", "value2"); err != nil {
		t.Fatal(err)
	}

	if err := store.Put(storePrefix+"key3", "value3"); err != nil {
		t.Fatal(err)
	}

	entries := make(map[string]string)

	err := store.Iterate(storePrefix, func(key, value []byte) (stop bool, err error) {
		var entry string
		if err := json.Unmarshal(value, &entry); err != nil {
			return true, err
		}
		entries[string(key)] = entry
		return false, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	wantEntries := map[string]string{"test_key1": "value1", "test_key3": "value3"}

	if diff := cmp.Diff(wantEntries, entries); diff != "" {
		t.Fatalf("iterated entries mismatch (-want +got):\n%s", diff)
	}
}

func insertValues(t *testing.T, store storage.StateStorer) {
	t.Helper()

	if err := store.Put(key1, value1); err != nil {
		t.Fatal(err)
	}

	if !value1.marshalCalled {
		t.Fatal("binary marshaler not called on serialized type")
	}

	if err := store.Put(key2, value2); err != nil {
		t.Fatal(err)
	}
}

func testPersistedValues(t *testing.T, store storage.StateStorer) {
	t.Helper()

	v := &serializing{}
	if err := store.Get(key1, v); err != nil {
		t.Fatal(err)
	}

	if !v.unmarshalCalled {
		t.Fatal("unmarshaler not called")
	}

	if v.value != value1.value {
		t.Fatalf("got persisted value %s, want %s", v.value, value1.value)
	}

	s := []string{}
	if err := store.Get(key2, &s); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(value2, s); diff != "" {
		t.Fatalf("deserialized data mismatch (-want +got):\n%s", diff)
	}
}
