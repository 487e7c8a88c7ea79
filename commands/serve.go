package commands

import (
	"context"

	log "github.com/sirupsen/logrus"

	"pingmesh/config"
	"pingmesh/node"
)

func RunServe(ctx context.Context, cfg *config.Config) {
	n, err := node.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}
	defer n.Close()

	if err := n.Run(ctx); err != nil {
		log.Fatalf("Node stopped: %v", err)
	}

	log.Infof("Node %s stopped, %d peers known", n.Addr, len(n.Engine.Peers()))
}
