package main

import (
	"fmt"
	"os"
	"strings"
)

// ProxyPair names the two sides of a proxied interface pair.
type ProxyPair struct {
	upstream            string
	downstream          string
	modifyRouterAddress bool
}

type Config struct {
	rsraPairs      []ProxyPair
	nsnaPairs      []ProxyPair
	controlSocket  string
	dropUnresolved bool
}

func parsePairs(envName string, modify bool) ([]ProxyPair, error) {
	var pairs []ProxyPair

	for _, pairStr := range strings.Split(os.Getenv(envName), ",") {
		if pairStr == "" {
			continue
		}
		parts := strings.Split(pairStr, ":")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("Malformed pair '%s' in %s (want upstream:downstream)", pairStr, envName)
		}
		pairs = append(pairs, ProxyPair{
			upstream:            parts[0],
			downstream:          parts[1],
			modifyRouterAddress: modify,
		})
	}

	return pairs, nil
}

func loadConfig() (*Config, error) {
	var cfg Config

	pairs, err := parsePairs("NDPROXY_RSRA_PAIRS", false)
	if err != nil {
		return nil, err
	}
	cfg.rsraPairs = pairs

	pairs, err = parsePairs("NDPROXY_RSRA_MODIFY_PAIRS", true)
	if err != nil {
		return nil, err
	}
	cfg.rsraPairs = append(cfg.rsraPairs, pairs...)

	pairs, err = parsePairs("NDPROXY_NSNA_PAIRS", false)
	if err != nil {
		return nil, err
	}
	cfg.nsnaPairs = pairs

	cfg.controlSocket = os.Getenv("NDPROXY_CONTROL_SOCKET")
	cfg.dropUnresolved = os.Getenv("NDPROXY_DROP_UNRESOLVED") == "1"

	return &cfg, nil
}

func dumpConfig(cfg *Config) {
	llog.Debug("ND Proxy Configuration:")
	if len(cfg.rsraPairs) > 0 {
		llog.Debug("  NDPROXY_RSRA_PAIRS")
		for i, p := range cfg.rsraPairs {
			llog.Debug("  %3d: %s:%s modify=%v", i, p.upstream, p.downstream, p.modifyRouterAddress)
		}
	}
	if len(cfg.nsnaPairs) > 0 {
		llog.Debug("  NDPROXY_NSNA_PAIRS")
		for i, p := range cfg.nsnaPairs {
			llog.Debug("  %3d: %s:%s", i, p.upstream, p.downstream)
		}
	}
	if cfg.controlSocket != "" {
		llog.Debug("  NDPROXY_CONTROL_SOCKET=%s", cfg.controlSocket)
	}
	llog.Debug("  NDPROXY_DROP_UNRESOLVED=%v", cfg.dropUnresolved)
}
