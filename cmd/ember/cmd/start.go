// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/embernode/ember"
	"github.com/embernode/ember/pkg/node"

	"github.com/spf13/cobra"
)

func (c *command) initStartCmd() (err error) {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an Ember node",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return err
			}

			logger.Infof("version: %v", ember.Version)

			n, err := node.NewNode(logger, node.Options{
				DataDir:         c.config.GetString(optionNameDataDir),
				MetricsAddr:     c.config.GetString(optionNameMetricsAddr),
				PersistInterval: c.config.GetDuration(optionNamePersistInterval),
			})
			if err != nil {
				return err
			}

			// Wait for termination or interrupt signals.
			interruptChannel := make(chan os.Signal, 1)
			signal.Notify(interruptChannel, syscall.SIGINT, syscall.SIGTERM)

			sig := <-interruptChannel
			logger.Debugf("received signal: %v", sig)
			logger.Info("shutting down")

			return n.Shutdown()
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	c.setAllFlags(cmd)
	c.root.AddCommand(cmd)
	return nil
}
