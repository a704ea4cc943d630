package main

import (
	"net"
	"strconv"
)

// splitHostPort splits an address into host and port, using defaultPort if no port is specified.
func splitHostPort(addr string, defaultPort int) (string, string, error) {
	ipaddr, port, err := net.SplitHostPort(addr)
	if err != nil {
		addr = addr + ":" + strconv.Itoa(defaultPort)
		ipaddr, port, err = net.SplitHostPort(addr)
		if err != nil {
			return "", "", err
		}
	}
	return ipaddr, port, nil
}

// listen opens a TCP listener on addr, which may omit the port.
func listen(addr string, defaultPort int) (net.Listener, error) {
	host, port, err := splitHostPort(addr, defaultPort)
	if err != nil {
		return nil, err
	}
	return net.Listen("tcp", net.JoinHostPort(host, port))
}
