package main

import (
	"context"
	"net"

	"github.com/nkta/ndproxy/logger"
)

var daemonErrs = make(chan error)

var llog = logger.NewBuiltinLogger()

func startDaemon(ctx context.Context, f func(context.Context) error) {
	go func() {
		err := f(ctx)
		if err != nil {
			daemonErrs <- err
		}
	}()
}

func applyStaticPairs(proxy *Proxy, cfg *Config) {
	resolve := func(name string) (int, bool) {
		netif, err := net.InterfaceByName(name)
		if err != nil {
			llog.Warning("Skipping pair with unknown interface %s", name)
			return 0, false
		}
		return netif.Index, true
	}

	for _, p := range cfg.rsraPairs {
		up, ok := resolve(p.upstream)
		if !ok {
			continue
		}
		down, ok := resolve(p.downstream)
		if !ok {
			continue
		}
		proxy.StartRSRAProxy(up, down, p.modifyRouterAddress)
		proxy.StartNSNAProxy(up, down)
		llog.Info("Proxying RS/RA+NS/NA between %s and %s", p.upstream, p.downstream)
	}
	for _, p := range cfg.nsnaPairs {
		a, ok := resolve(p.upstream)
		if !ok {
			continue
		}
		b, ok := resolve(p.downstream)
		if !ok {
			continue
		}
		proxy.StartNSNAProxy(a, b)
		llog.Info("Proxying NS/NA between %s and %s", p.upstream, p.downstream)
	}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		llog.Fatal("%s", err)
	}
	dumpConfig(cfg)

	proxy, err := NewProxy(cfg.dropUnresolved)
	if err != nil {
		llog.Fatal("Failed to initialize ND proxy: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.controlSocket != "" {
		ctl := NewControlServer(cfg.controlSocket, proxy)
		proxy.SetGuestDiscoveryHandler(func(ifindex int, addr net.IP) {
			llog.Info("Discovered guest address %s on %s", addr, ifindexName(ifindex))
			ctl.EmitGuestDiscovery(ifindex, addr)
		})
		proxy.SetRouterDiscoveryHandler(func(ifindex int, prefix net.IP, prefixLen int) {
			llog.Info("Discovered router prefix %s/%d on %s", prefix, prefixLen, ifindexName(ifindex))
			ctl.EmitRouterDiscovery(ifindex, prefix, prefixLen)
		})
		startDaemon(ctx, func(context.Context) error { return ctl.Run() })
	} else {
		proxy.SetGuestDiscoveryHandler(func(ifindex int, addr net.IP) {
			llog.Info("Discovered guest address %s on %s", addr, ifindexName(ifindex))
		})
		proxy.SetRouterDiscoveryHandler(func(ifindex int, prefix net.IP, prefixLen int) {
			llog.Info("Discovered router prefix %s/%d on %s", prefix, prefixLen, ifindexName(ifindex))
		})
	}

	applyStaticPairs(proxy, cfg)

	llog.Info("Starting ND Proxy")
	startDaemon(ctx, func(ctx context.Context) error { return proxy.Run(ctx) })

	llog.Fatal("%s", <-daemonErrs)
}
