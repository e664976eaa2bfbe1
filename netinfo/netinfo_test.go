package netinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickMACPrefersWlan(t *testing.T) {
	eth, _ := net.ParseMAC("b8:27:eb:00:00:01")
	wlan, _ := net.ParseMAC("b8:27:eb:00:00:02")
	ifaces := []net.Interface{
		{Name: "lo", Flags: net.FlagLoopback, HardwareAddr: nil},
		{Name: "eth0", HardwareAddr: eth},
		{Name: "wlan0", HardwareAddr: wlan},
	}
	assert.Equal(t, "b8:27:eb:00:00:02", pickMAC(ifaces))
}

func TestPickMACNone(t *testing.T) {
	assert.Equal(t, "", pickMAC([]net.Interface{{Name: "lo", Flags: net.FlagLoopback}}))
}

func TestMACAddressNeverEmpty(t *testing.T) {
	assert.NotEmpty(t, MACAddress())
	assert.Equal(t, "01:02:ab", formatNode([]byte{1, 2, 0xab}))
}
