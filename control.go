package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
)

// ControlServer is the daemon-facing side of the control channel: a unix
// stream socket speaking a line protocol. Commands drive the proxy topology;
// discovery signals are pushed back to every connected client.
//
//	start <upstream> <downstream>        RS/RA + NS/NA pair
//	start-modify <upstream> <downstream> same, substituting the router address
//	start-nsna <ifA> <ifB>               NS/NA-only pair
//	stop <ifA> <ifB>
//
// Events: "guest <ifname> <addr>" and "router <ifname> <prefix>/<len>".
type ControlServer struct {
	path  string
	proxy *Proxy

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewControlServer(path string, proxy *Proxy) *ControlServer {
	return &ControlServer{
		path:  path,
		proxy: proxy,
		conns: make(map[net.Conn]struct{}),
	}
}

func (c *ControlServer) Run() error {
	_ = os.Remove(c.path)
	ln, err := net.Listen("unix", c.path)
	if err != nil {
		return fmt.Errorf("control socket listen failed: %s", err)
	}
	defer ln.Close()
	llog.Info("Control socket listening on %s", c.path)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.conns[conn] = struct{}{}
		c.mu.Unlock()
		go c.serve(conn)
	}
}

func (c *ControlServer) serve(conn net.Conn) {
	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply := c.dispatch(strings.Fields(scanner.Text()))
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}
}

func (c *ControlServer) dispatch(fields []string) string {
	if len(fields) == 0 {
		return "err empty command"
	}
	cmd := fields[0]
	if len(fields) != 3 {
		return fmt.Sprintf("err %s expects two interface names", cmd)
	}

	ifA, err := net.InterfaceByName(fields[1])
	if err != nil {
		return fmt.Sprintf("err unknown interface %s", fields[1])
	}
	ifB, err := net.InterfaceByName(fields[2])
	if err != nil {
		return fmt.Sprintf("err unknown interface %s", fields[2])
	}

	switch cmd {
	case "start":
		c.proxy.StartRSRAProxy(ifA.Index, ifB.Index, false)
		c.proxy.StartNSNAProxy(ifA.Index, ifB.Index)
	case "start-modify":
		c.proxy.StartRSRAProxy(ifA.Index, ifB.Index, true)
		c.proxy.StartNSNAProxy(ifA.Index, ifB.Index)
	case "start-nsna":
		c.proxy.StartNSNAProxy(ifA.Index, ifB.Index)
	case "stop":
		c.proxy.StopProxy(ifA.Index, ifB.Index)
	default:
		return fmt.Sprintf("err unknown command %s", cmd)
	}
	return "ok"
}

func (c *ControlServer) broadcast(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn := range c.conns {
		if _, err := fmt.Fprintln(conn, line); err != nil {
			_ = conn.Close()
			delete(c.conns, conn)
		}
	}
}

func ifindexName(ifindex int) string {
	netif, err := net.InterfaceByIndex(ifindex)
	if err != nil {
		return fmt.Sprintf("if%d", ifindex)
	}
	return netif.Name
}

// EmitGuestDiscovery publishes a guest-discovered address to control clients.
func (c *ControlServer) EmitGuestDiscovery(ifindex int, addr net.IP) {
	c.broadcast(fmt.Sprintf("guest %s %s", ifindexName(ifindex), addr))
}

// EmitRouterDiscovery publishes a router-discovered prefix to control clients.
func (c *ControlServer) EmitRouterDiscovery(ifindex int, prefix net.IP, prefixLen int) {
	c.broadcast(fmt.Sprintf("router %s %s/%d", ifindexName(ifindex), prefix, prefixLen))
}
