package commands

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pingmesh/clock"
	"pingmesh/discovery"
	"pingmesh/hwaddr"
	"pingmesh/link/memlink"
	"pingmesh/metrics"
)

type SimulateOptions struct {
	Nodes      int
	DurationMs uint64
	StepMs     uint64
	KillAtMs   uint64 // 0 keeps every node alive
	LossRate   float64
	Seed       int64
	Engine     discovery.Config
}

type SimulatedNode struct {
	Addr  hwaddr.Addr
	Alive bool
	Peers []discovery.PeerStatus
}

// SimulationResult holds the final peer tables and the totals across all nodes.
type SimulationResult struct {
	Nodes   []SimulatedNode
	Metrics *metrics.Metrics
}

func simulatedAddr(i int) hwaddr.Addr {
	return hwaddr.Addr{0x02, 0, 0, 0, byte(i >> 8), byte(i)}
}

// Simulate runs opts.Nodes engines on a shared lossy medium against one manual clock. The
// last node is detached at KillAtMs.
func Simulate(ctx context.Context, opts SimulateOptions) (*SimulationResult, error) {
	if opts.Nodes < 1 {
		return nil, fmt.Errorf("simulate: need at least one node, got %d", opts.Nodes)
	}
	if opts.StepMs == 0 {
		return nil, fmt.Errorf("simulate: step must be positive")
	}

	medium := memlink.NewMedium(opts.LossRate, opts.Seed)
	clk := clock.NewManual(0)
	m := metrics.NewMetrics("simulate")

	nodes := make([]SimulatedNode, opts.Nodes)
	engines := make([]*discovery.Engine, opts.Nodes)
	for i := range nodes {
		addr := simulatedAddr(i + 1)
		ep, err := medium.Attach(addr)
		if err != nil {
			return nil, err
		}
		nodes[i] = SimulatedNode{Addr: addr, Alive: true}
		engines[i] = discovery.New(ep, clk, opts.Engine, m)
	}

	victim := opts.Nodes - 1
	for now := uint64(0); now <= opts.DurationMs; now += opts.StepMs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clk.Set(now)

		if opts.KillAtMs != 0 && now >= opts.KillAtMs && nodes[victim].Alive {
			log.Infof("simulate: t=%d ms, detaching %s", now, nodes[victim].Addr)
			medium.Detach(nodes[victim].Addr)
			nodes[victim].Alive = false
		}

		for i, e := range engines {
			if !nodes[i].Alive {
				continue
			}
			// Drain the backlog; the first Step also services a due tick
			for j := 0; j < memlink.DefaultQueueSize; j++ {
				if !e.Step() {
					break
				}
			}
		}
	}

	for i, e := range engines {
		nodes[i].Peers = e.Peers()
	}

	return &SimulationResult{Nodes: nodes, Metrics: m}, nil
}

func RunSimulate(ctx context.Context, opts SimulateOptions) {
	res, err := Simulate(ctx, opts)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	for _, n := range res.Nodes {
		state := "alive"
		if !n.Alive {
			state = "detached"
		}
		log.Infof("Node %s (%s): %d peers", n.Addr, state, len(n.Peers))
		for _, p := range n.Peers {
			log.Infof("  %s pending=%t sent=%d", p.Addr, p.Record.Pending, p.Record.ProbeSentAt)
		}
	}

	families, err := res.Metrics.Registry().Gather()
	if err != nil {
		log.Errorf("Failed to gather simulation metrics: %v", err)
		return
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				log.Infof("%s %v", mf.GetName(), metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				log.Infof("%s %v", mf.GetName(), metric.GetGauge().GetValue())
			case metric.GetHistogram() != nil:
				log.Infof("%s count=%d sum=%v", mf.GetName(), metric.GetHistogram().GetSampleCount(), metric.GetHistogram().GetSampleSum())
			}
		}
	}
}
