package discovery

import (
	"errors"
	"net"
	"testing"
)

func TestStatic(t *testing.T) {
	id, err := Static("10.0.0.4").LocalIdentity()
	if err != nil || id != "10.0.0.4" {
		t.Fatalf("Static = %q,%v", id, err)
	}
	if _, err := Static("").LocalIdentity(); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("empty Static err = %v, want ErrNoAddress", err)
	}
}

func TestFirstIPv4(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1")},
		&net.IPNet{IP: net.ParseIP("fe80::1")},
		&net.IPNet{IP: net.ParseIP("169.254.3.4")},
		&net.IPAddr{IP: net.ParseIP("192.168.4.20")},
		&net.IPNet{IP: net.ParseIP("10.1.1.1")},
	}
	if got := firstIPv4(addrs); got.String() != "192.168.4.20" {
		t.Fatalf("firstIPv4 = %v, want 192.168.4.20", got)
	}
	if got := firstIPv4(addrs[:3]); got != nil {
		t.Fatalf("firstIPv4(loopback/link-local) = %v, want nil", got)
	}
}

func TestLocalAddrUnknownInterface(t *testing.T) {
	_, err := LocalAddr{Interface: "no-such-iface0"}.LocalIdentity()
	if !errors.Is(err, ErrNoAddress) {
		t.Fatalf("err = %v, want ErrNoAddress", err)
	}
}
