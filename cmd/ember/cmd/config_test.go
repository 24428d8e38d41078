// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigEnvBinding(t *testing.T) {
	t.Setenv("EMBER_VERBOSITY", "debug")
	t.Setenv("EMBER_METRICS_ADDR", "127.0.0.1:6060")

	c, err := newCommand(WithHomeDir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.initConfig(); err != nil {
		t.Fatal(err)
	}

	if v := c.config.GetString(optionNameVerbosity); v != "debug" {
		t.Errorf("got verbosity %q, want %q", v, "debug")
	}
	if v := c.config.GetString(optionNameMetricsAddr); v != "127.0.0.1:6060" {
		t.Errorf("got metrics address %q, want %q", v, "127.0.0.1:6060")
	}
}

func TestConfigFile(t *testing.T) {
	home := t.TempDir()
	cfg := filepath.Join(home, ".ember.yaml")
	if err := os.WriteFile(cfg, []byte("verbosity: trace\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := newCommand(WithHomeDir(home))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.initConfig(); err != nil {
		t.Fatal(err)
	}

	if v := c.config.GetString(optionNameVerbosity); v != "trace" {
		t.Errorf("got verbosity %q, want %q", v, "trace")
	}

	// environment overrides the config file
	t.Setenv("EMBER_VERBOSITY", "warn")
	if v := c.config.GetString(optionNameVerbosity); v != "warn" {
		t.Errorf("got verbosity %q, want environment override %q", v, "warn")
	}
}
