package main

import (
	"context"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/luca-patrignani/tair-protocol/config"
	"github.com/luca-patrignani/tair-protocol/discovery"
	"github.com/luca-patrignani/tair-protocol/network"
	"github.com/luca-patrignani/tair-protocol/oracle"
)

const defaultOraclePort = 8645

// runOracle serves randomness requests until ctx is done.
func runOracle(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	l, err := listen(cfg.OracleAddr, defaultOraclePort)
	if err != nil {
		return err
	}
	beacon := oracle.NewBeacon(0, logger)
	defer beacon.Close()

	requests := network.NewServer("/request", network.WithLogger(logger))
	requests.Start(l)
	defer requests.Close()

	key, err := oracle.MarshalPublicKey(beacon.PublicKey())
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Oracle listening on %s", requests.URL())
	pterm.Info.Printfln("ORACLE_PUBLIC_KEY=%s", key)

	announcer, err := discovery.Announce(
		discovery.Entry{URL: requests.URL(), PublicKey: key},
		discovery.WithPortRange(cfg.DiscoveryStart, cfg.DiscoveryEnd),
	)
	if err != nil {
		logger.Warn("oracle not announced", "error", err)
	} else {
		defer announcer.Close()
		logger.Info("oracle announced", "port", announcer.Port())
	}

	client := network.NewClient(network.WithTimeout(cfg.RequestTimeout), network.WithLogger(logger))
	return oracle.NewService(beacon, requests, client, cfg.OracleDelay, logger).Run(ctx)
}
