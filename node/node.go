// Package node assembles a running pingmesh node: a link, the discovery engine and its
// observers.
package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"

	"pingmesh/clock"
	"pingmesh/config"
	"pingmesh/datastore/leveldb"
	"pingmesh/discovery"
	"pingmesh/hwaddr"
	"pingmesh/link"
	"pingmesh/metrics"
	"pingmesh/net/udplink"
)

// Transport is a link that needs a reader running alongside the engine.
type Transport interface {
	link.Link
	link.Versioner
	Listen(ctx context.Context) error
	Close() error
}

type Node struct {
	Addr    hwaddr.Addr
	Link    Transport
	Engine  *discovery.Engine
	Journal *leveldb.Journal
	Metrics *metrics.Metrics

	pollInterval time.Duration
	metricsAddr  string
}

// Options describe a node built from already opened parts.
type Options struct {
	Addr         hwaddr.Addr
	Engine       discovery.Config
	PollInterval time.Duration
	Journal      *leveldb.Journal // optional
	Metrics      *metrics.Metrics // optional
	MetricsAddr  string           // serve Metrics here when both are set
	Clock        clock.Clock      // defaults to a monotonic clock
}

func New(t Transport, opts Options) (*Node, error) {
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("node: poll interval must be positive, got %v", opts.PollInterval)
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewMonotonic()
	}

	var observers discovery.Observers
	if opts.Journal != nil {
		observers = append(observers, opts.Journal)
	}
	if opts.Metrics != nil {
		observers = append(observers, opts.Metrics)
	}

	return &Node{
		Addr:         opts.Addr,
		Link:         t,
		Engine:       discovery.New(t, opts.Clock, opts.Engine, observers),
		Journal:      opts.Journal,
		Metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		metricsAddr:  opts.MetricsAddr,
	}, nil
}

// NewFromConfig opens the multicast link, the journal and, if configured, the metrics
// registry described by cfg.
func NewFromConfig(cfg *config.Config) (*Node, error) {
	l, err := udplink.Open(cfg.Node.Address, cfg.Network.MulticastGroup, cfg.Network.Interface, cfg.Network.QueueSize)
	if err != nil {
		return nil, err
	}

	journal, err := leveldb.NewJournal(cfg.DataStore.JournalPath, cfg.DataStore.MaxEvents)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.ListenAddress != "" {
		m = metrics.NewMetrics(cfg.Metrics.Namespace)
	}

	n, err := New(l, Options{
		Addr:         cfg.Node.Address,
		Engine:       cfg.EngineConfig(),
		PollInterval: time.Duration(cfg.Discovery.PollMs) * time.Millisecond,
		Journal:      journal,
		Metrics:      m,
		MetricsAddr:  cfg.Metrics.ListenAddress,
	})
	if err != nil {
		l.Close()
		journal.Close()
		return nil, err
	}
	return n, nil
}

// Run blocks until ctx is cancelled or one of the node's loops fails.
func (n *Node) Run(ctx context.Context) error {
	log.Infof("Node %s starting, link version: %s", n.Addr, n.Link.Version())

	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return n.Link.Listen(cctx)
	})

	wg.Go(func() error {
		return n.Engine.Run(cctx, n.pollInterval)
	})

	if n.Metrics != nil && n.metricsAddr != "" {
		wg.Go(func() error {
			return n.Metrics.Serve(cctx, n.metricsAddr)
		})
	}

	err := wg.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func (n *Node) Close() error {
	var errs []error
	if err := n.Link.Close(); err != nil {
		errs = append(errs, err)
	}
	if n.Journal != nil {
		if err := n.Journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
