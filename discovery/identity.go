// Package discovery provides identity sources: how a peer learns the network
// address it announces to the rest of the party.
package discovery

import (
	"errors"
	"net"

	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

var ErrNoAddress = errors.New("discovery: no usable IPv4 address")

// Static is a fixed identity, e.g. from configuration.
type Static string

func (s Static) LocalIdentity() (gossip.PeerID, error) {
	if s == "" {
		return "", ErrNoAddress
	}
	return gossip.PeerID(s), nil
}

// LocalAddr resolves the first IPv4 address of an interface that is up and
// not a loopback. Interface restricts the search to one interface by name.
type LocalAddr struct {
	Interface string
}

func (l LocalAddr) LocalIdentity() (gossip.PeerID, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if l.Interface != "" && iface.Name != l.Interface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addrs); ip != nil {
			return gossip.PeerID(ip.String()), nil
		}
	}
	return "", ErrNoAddress
}

func firstIPv4(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() && !ip4.IsLinkLocalUnicast() {
			return ip4
		}
	}
	return nil
}
