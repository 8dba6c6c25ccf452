// Package mcast implements transport.Transport over real UDP multicast
// sockets: one listening socket joined to this process's group, and one
// dial socket per destination group opened lazily on first send.
package mcast

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kelvinbranch/paxcast/internal/netsel"
	"github.com/kelvinbranch/paxcast/internal/transport"
	"github.com/kelvinbranch/paxcast/internal/wire"
)

// readPollInterval bounds how long a Recv with no context deadline blocks
// before re-checking ctx/Close.
const readPollInterval = time.Second

// Transport is the production transport.Transport: it listens on the
// multicast group this role joins and can send to any of the three
// groups.
type Transport struct {
	group     transport.Group
	endpoints map[transport.Group]transport.Endpoint

	recvConn *net.UDPConn

	sendMu    sync.Mutex
	sendConns map[transport.Group]*net.UDPConn

	closeOnce sync.Once
	closed    chan struct{}
}

// New joins group on the multicast endpoint configured for it in
// endpoints, binding the local interface resolved from bindHost via
// internal/netsel. endpoints must carry an entry for every group this
// process might send to, which config.Load guarantees.
//
// Passing group == "" joins no multicast group: the resulting Transport
// can still Send to any group, but Recv always blocks until ctx is done,
// the same send-only shape internal/memtransport.Network.Join("") models
// for the client role, which has no inbound group of its own.
func New(endpoints map[transport.Group]transport.Endpoint, group transport.Group, bindHost string) (*Transport, error) {
	t := &Transport{
		group:     group,
		endpoints: endpoints,
		sendConns: make(map[transport.Group]*net.UDPConn),
		closed:    make(chan struct{}),
	}
	if group == "" {
		return t, nil
	}

	ep, ok := endpoints[group]
	if !ok {
		return nil, errors.Errorf("no configured endpoint for group %q", group)
	}

	bindIP, err := netsel.BindIP(bindHost)
	if err != nil {
		return nil, errors.Wrap(err, "resolve bind address")
	}
	iface, err := interfaceForIP(bindIP)
	if err != nil {
		return nil, errors.Wrap(err, "resolve multicast interface")
	}

	groupIP := net.ParseIP(ep.Host)
	if groupIP == nil {
		return nil, errors.Errorf("group %q endpoint host %q is not an IP", group, ep.Host)
	}
	conn, err := net.ListenMulticastUDP("udp4", iface, &net.UDPAddr{IP: groupIP, Port: ep.Port})
	if err != nil {
		return nil, errors.Wrapf(err, "join multicast group %q at %s:%d", group, ep.Host, ep.Port)
	}
	conn.SetReadBuffer(wire.MaxDatagramSize * 4)

	t.recvConn = conn
	return t, nil
}

// interfaceForIP finds the local network interface owning ip, so
// ListenMulticastUDP joins on the right NIC. A nil result (no match) lets
// ListenMulticastUDP fall back to the OS default, which is adequate on
// single-homed hosts such as the loopback reference configuration.
func interfaceForIP(ip net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, nil
}

// Send encodes f and writes it to group's configured multicast endpoint,
// dialing and caching a socket for that group on first use.
func (t *Transport) Send(group transport.Group, f wire.Frame) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	default:
	}

	b, err := wire.Encode(f)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	conn, err := t.sendConnFor(group)
	if err != nil {
		return err
	}
	_, err = conn.Write(b)
	if err != nil {
		return errors.Wrapf(err, "send to group %q", group)
	}
	return nil
}

func (t *Transport) sendConnFor(group transport.Group) (*net.UDPConn, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if conn, ok := t.sendConns[group]; ok {
		return conn, nil
	}
	ep, ok := t.endpoints[group]
	if !ok {
		return nil, errors.Errorf("no configured endpoint for group %q", group)
	}
	raddr := &net.UDPAddr{IP: net.ParseIP(ep.Host), Port: ep.Port}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial group %q at %s:%d", group, ep.Host, ep.Port)
	}
	t.sendConns[group] = conn
	return conn, nil
}

// Recv reads and decodes the next datagram addressed to this transport's
// joined group. It honors ctx's deadline if set; otherwise it polls in
// readPollInterval slices so Close and ctx cancellation are still timely.
func (t *Transport) Recv(ctx context.Context) (wire.Frame, error) {
	select {
	case <-t.closed:
		return wire.Frame{}, transport.ErrClosed
	default:
	}

	if t.recvConn == nil {
		select {
		case <-t.closed:
			return wire.Frame{}, transport.ErrClosed
		case <-ctx.Done():
			return wire.Frame{}, transport.ErrTimeout
		}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(readPollInterval)
	}
	if err := t.recvConn.SetReadDeadline(deadline); err != nil {
		return wire.Frame{}, errors.Wrap(err, "set read deadline")
	}

	buf := make([]byte, wire.MaxDatagramSize)
	n, _, err := t.recvConn.ReadFromUDP(buf)
	for !hasDeadline && ctx.Err() == nil {
		if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			break
		}
		if err = t.recvConn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			break
		}
		n, _, err = t.recvConn.ReadFromUDP(buf)
	}
	if err != nil {
		select {
		case <-t.closed:
			return wire.Frame{}, transport.ErrClosed
		default:
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return wire.Frame{}, transport.ErrTimeout
		}
		return wire.Frame{}, errors.Wrap(err, "read multicast datagram")
	}

	f, err := wire.Decode(buf[:n])
	if err != nil {
		return wire.Frame{}, errors.Wrap(err, "decode datagram")
	}
	return f, nil
}

// Close releases the listening socket and every dialed send socket.
// Idempotent.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.recvConn != nil {
			t.recvConn.Close()
		}
		t.sendMu.Lock()
		for _, conn := range t.sendConns {
			conn.Close()
		}
		t.sendMu.Unlock()
	})
	return nil
}
