package commands

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"

	"pingmesh/config"
	"pingmesh/hwaddr"
)

// RunInit writes a default config with a freshly generated node address. An existing file is
// left alone unless force is set.
func RunInit(ctx context.Context, cfg *config.Config, force bool) {
	if _, err := os.Stat(cfg.Path()); err == nil && !force {
		log.Fatalf("Config %s already exists, use -force to overwrite", cfg.Path())
	}

	addr, err := hwaddr.Random()
	if err != nil {
		log.Fatalf("Failed to generate node address: %v", err)
	}
	cfg.Node.Address = addr

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Generated config is invalid: %v", err)
	}
	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}

	log.Infof("Initialized node %s", addr)
}
