// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node defines the concept of an Ember node by bootstrapping
// and injecting all necessary dependencies: the statestore, the peer
// address book and the debug metrics listener. It starts the
// subsystems in dependency order and tears them down in reverse,
// aggregating their failures.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/embernode/ember/pkg/logging"
	"github.com/embernode/ember/pkg/metrics"
	"github.com/embernode/ember/pkg/peerbook"
	"github.com/embernode/ember/pkg/statestore/leveldb"
	"github.com/embernode/ember/pkg/storage"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const defaultPersistInterval = 10 * time.Minute

// ErrShutdownInProgress is returned by Shutdown while another shutdown
// is still running. A completed shutdown makes further calls no-ops.
var ErrShutdownInProgress = errors.New("node shutdown in progress")

type Options struct {
	// DataDir is the state directory; empty keeps all state in memory.
	DataDir string
	// MetricsAddr enables the debug metrics listener when non-empty.
	MetricsAddr string
	// PersistInterval is the period of the peer book flusher.
	PersistInterval time.Duration
}

type Node struct {
	logger           logging.Logger
	peerBook         *peerbook.Book
	stateStoreCloser io.Closer
	peerBookCloser   io.Closer
	metricsServer    *http.Server
	flusherCancel    context.CancelFunc
	flusherDone      chan struct{}

	shutdownInProgress bool
	shutdownDone       bool
	shutdownMutex      sync.Mutex
}

// NewNode boots the subsystems and returns a running node.
func NewNode(logger logging.Logger, o Options) (*Node, error) {
	if o.PersistInterval <= 0 {
		o.PersistInterval = defaultPersistInterval
	}

	n := &Node{logger: logger}

	stateStore, err := initStateStore(logger, o.DataDir)
	if err != nil {
		return nil, fmt.Errorf("statestore: %w", err)
	}
	n.stateStoreCloser = stateStore

	book := peerbook.New(stateStore, logger)
	if err := book.Start(); err != nil {
		// release what was already started
		if cerr := stateStore.Close(); cerr != nil {
			logger.Errorf("node: close statestore after failed boot: %v", cerr)
		}
		return nil, fmt.Errorf("peer book: %w", err)
	}
	n.peerBook = book
	n.peerBookCloser = book

	ctx, cancel := context.WithCancel(context.Background())
	n.flusherCancel = cancel
	n.flusherDone = make(chan struct{})
	go n.flusher(ctx, o.PersistInterval)

	if o.MetricsAddr != "" {
		n.metricsServer = newMetricsServer(o.MetricsAddr, logger, book)
		go func() {
			logger.Infof("node: metrics listening on %s", o.MetricsAddr)
			if err := n.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("node: metrics server: %v", err)
			}
		}()
	}

	return n, nil
}

// PeerBook exposes the peer address book to the connection layer.
func (n *Node) PeerBook() *peerbook.Book {
	return n.peerBook
}

// Shutdown stops the subsystems in reverse boot order, persisting the
// peer book on the way down. A call during a running shutdown returns
// ErrShutdownInProgress; calls after a completed one are no-ops.
func (n *Node) Shutdown() error {
	n.shutdownMutex.Lock()
	if n.shutdownDone {
		n.shutdownMutex.Unlock()
		return nil
	}
	if n.shutdownInProgress {
		n.shutdownMutex.Unlock()
		return ErrShutdownInProgress
	}
	n.shutdownInProgress = true
	n.shutdownMutex.Unlock()

	var mErr error

	// tryClose is a convenient closure which decreases
	// repetitive io.Closer tryClose procedure.
	tryClose := func(c io.Closer, errMsg string) {
		if c == nil {
			return
		}
		if err := c.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%s: %w", errMsg, err))
		}
	}

	if n.flusherCancel != nil {
		n.flusherCancel()
		<-n.flusherDone
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var eg errgroup.Group
	if n.metricsServer != nil {
		eg.Go(func() error {
			if err := n.metricsServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		mErr = multierror.Append(mErr, err)
	}

	tryClose(n.peerBookCloser, "peer book")
	tryClose(n.stateStoreCloser, "statestore")

	n.shutdownMutex.Lock()
	n.shutdownDone = true
	n.shutdownMutex.Unlock()

	return mErr
}

// flusher periodically persists the peer book so a crash loses at most
// one interval of history.
func (n *Node) flusher(ctx context.Context, interval time.Duration) {
	defer close(n.flusherDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.peerBook.Flush(); err != nil {
				n.logger.Errorf("node: flush peer book: %v", err)
			}
		}
	}
}

// initStateStore initializes the statestore under the data directory,
// or in memory when no directory is configured.
func initStateStore(logger logging.Logger, dataDir string) (storage.StateStorer, error) {
	if dataDir == "" {
		logger.Warning("node: using in-mem state store, no node state will be persisted")
		return leveldb.NewInMemoryStateStore(logger)
	}
	return leveldb.NewStateStore(filepath.Join(dataDir, "statestore"), logger)
}

func newMetricsServer(addr string, logger logging.Logger, collectors ...metrics.Collector) *http.Server {
	registry := prometheus.NewRegistry()
	for _, c := range collectors {
		registry.MustRegister(c.Metrics()...)
	}
	if c, ok := logger.(metrics.Collector); ok {
		registry.MustRegister(c.Metrics()...)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		registry,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	))

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}
