// Package netsel resolves which local IP address a role should bind when
// joining a multicast group, the same problem a clustered Go service faces
// when choosing an advertise address: adapted from
// adymitruk-caspaxos/cluster.calculateAdvertiseIP.
package netsel

import (
	"context"
	"net"
	"strings"

	"github.com/hashicorp/go-sockaddr"
	"github.com/pkg/errors"
)

// resolver models net.DefaultResolver so tests can substitute a fake.
type resolver interface {
	LookupIPAddr(ctx context.Context, address string) ([]net.IPAddr, error)
}

// BindIP picks the local IP to bind for a multicast join given a bind host
// (cmd/paxcast always passes "0.0.0.0"):
//
//   - a literal IP is used as-is (normalized to 4-byte form when possible)
//   - "0.0.0.0" falls back to the host's private IP via go-sockaddr
//   - anything else is resolved as a hostname, requiring exactly one
//     result so the choice is unambiguous
func BindIP(bindHost string) (net.IP, error) {
	return bindIP(bindHost, net.DefaultResolver)
}

func bindIP(bindHost string, r resolver) (net.IP, error) {
	if ip := net.ParseIP(bindHost); ip != nil && bindHost != "0.0.0.0" {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return ip, nil
	}

	if bindHost == "0.0.0.0" || bindHost == "" {
		privateIP, err := sockaddr.GetPrivateIP()
		if err != nil {
			return nil, errors.Wrap(err, "deduce private IP for all-zeroes bind host")
		}
		if privateIP == "" {
			return nil, errors.New("no private IP found for all-zeroes bind host")
		}
		ip := net.ParseIP(privateIP)
		if ip == nil {
			return nil, errors.Errorf("failed to parse private IP %q", privateIP)
		}
		return ip, nil
	}

	ips, err := r.LookupIPAddr(context.Background(), bindHost)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve bind host %q", bindHost)
	}
	if len(ips) != 1 {
		return nil, errors.Errorf("bind host %q resolved to %d addresses, want 1", bindHost, len(ips))
	}
	ip := ips[0].IP
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return ip, nil
}

// IsUnroutable reports whether addr (an IP or "host:port") is a loopback
// or unspecified address, used to decide whether a configured endpoint can
// plausibly reach other processes off-box.
func IsUnroutable(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsUnspecified() || ip.IsLoopback()
	}
	return strings.ToLower(host) == "localhost"
}
