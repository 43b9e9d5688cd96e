// Copyright (c) 2022-present, DiceDB contributors
// All rights reserved. Licensed under the BSD 3-Clause License. See LICENSE file in the project root for full license information.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Niskigvan/couchdb/config"
	"github.com/Niskigvan/couchdb/internal/cluster"
	"github.com/Niskigvan/couchdb/internal/feed"
	"github.com/Niskigvan/couchdb/internal/observability"
	"github.com/Niskigvan/couchdb/internal/shardsync"
	"github.com/Niskigvan/couchdb/internal/transport"
)

var (
	schedMu   sync.RWMutex
	schedInst *shardsync.Scheduler
)

// Scheduler returns the running sync scheduler, or nil when the server is
// not started in this process. Used by the sync-status command.
func Scheduler() *shardsync.Scheduler {
	schedMu.RLock()
	defer schedMu.RUnlock()
	return schedInst
}

func setScheduler(s *shardsync.Scheduler) {
	schedMu.Lock()
	schedInst = s
	schedMu.Unlock()
}

func printConfiguration() {
	slog.Info("starting CouchDB sync node", slog.String("version", config.CouchDBVersion))
	slog.Info("running as", slog.String("node", config.Config.NodeName))
	slog.Info("running with", slog.Int("sync-delay-ms", config.Config.SyncDelayMillis))
	slog.Info("running with", slog.Int("sync-frequency-ms", config.Config.SyncFrequencyMillis))
	slog.Info("running with", slog.String("nats-url", config.Config.NATSURL))
}

func printBanner() {
	fmt.Print(`

 ██████╗ ██████╗ ██╗   ██╗ ██████╗██╗  ██╗██████╗ ██████╗
██╔════╝██╔═══██╗██║   ██║██╔════╝██║  ██║██╔══██╗██╔══██╗
██║     ██║   ██║██║   ██║██║     ███████║██║  ██║██████╔╝
██║     ██║   ██║██║   ██║██║     ██╔══██║██║  ██║██╔══██╗
╚██████╗╚██████╔╝╚██████╔╝╚██████╗██║  ██║██████╔╝██████╔╝
 ╚═════╝ ╚═════╝  ╚═════╝  ╚═════╝╚═╝  ╚═╝╚═════╝ ╚═════╝

`)
}

// Start wires the sync scheduler to the cluster bus and blocks until the
// process receives SIGINT or SIGTERM.
func Start() {
	printBanner()
	printConfiguration()

	cfg := config.Config
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("couchdb-sync-"+cfg.NodeName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second))
	if err != nil {
		slog.Error("could not connect to the cluster bus", slog.Any("error", err))
		os.Exit(1)
	}
	defer nc.Close()

	membership := cluster.NewMembership(nc, cluster.MembershipConfig{
		Self:     cfg.NodeName,
		Subject:  "couch.cluster.heartbeat",
		Interval: time.Duration(cfg.HeartbeatIntervalMillis) * time.Millisecond,
		TTL:      time.Duration(cfg.NodeTTLMillis) * time.Millisecond,
	})
	if err := membership.Start(ctx); err != nil {
		slog.Error("could not start membership tracker", slog.Any("error", err))
		os.Exit(1)
	}
	defer membership.Stop()

	directory := cluster.NewDirectory(membership, cfg.ReplicaCount)
	shardMaps := cluster.NewShardMapListener(nc, cfg.ShardMapSubject, directory)
	if err := shardMaps.Start(); err != nil {
		slog.Error("could not start shard map listener", slog.Any("error", err))
		os.Exit(1)
	}
	defer shardMaps.Stop()

	pushTransport := transport.NewNATSPush(nc, cfg.PushSubjectPrefix, cfg.NodeName)
	executor := shardsync.NewExecutor(directory, membership, pushTransport)

	sched := shardsync.NewScheduler(shardsync.Config{
		Delay:     time.Duration(cfg.SyncDelayMillis) * time.Millisecond,
		Frequency: time.Duration(cfg.SyncFrequencyMillis) * time.Millisecond,
		Controls: shardsync.ControlSet{
			Nodes:  cfg.NodesDB,
			Shards: cfg.ShardsDB,
			Users:  cfg.UsersDB,
		},
		Executor:   executor,
		Membership: membership,
		Directory:  directory,
	})
	sched.Start(ctx)
	defer sched.Stop()
	setScheduler(sched)
	defer setScheduler(nil)

	listener := feed.NewListener(nc, cfg.FeedSubject,
		time.Duration(cfg.ResubscribeBackoffMillis)*time.Millisecond,
		sched.Notify)
	listener.Start(ctx)

	config.WatchTunables(sched.Reconfigure)

	mux := http.NewServeMux()
	observability.SetupPrometheus(mux)
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server exited", slog.Any("error", err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sigChan:
		slog.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	_ = nc.Drain()
}
