// Package netinfo finds the identifiers written next to every sample.
package netinfo

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// MACAddress of the first wlan interface, else any interface with a hardware
// address, else the uuid node id.
func MACAddress() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		if mac := pickMAC(ifaces); mac != "" {
			return mac
		}
	}
	return formatNode(uuid.NodeID())
}

func pickMAC(ifaces []net.Interface) string {
	sort.SliceStable(ifaces, func(i, j int) bool {
		return strings.HasPrefix(ifaces[i].Name, "wlan") && !strings.HasPrefix(ifaces[j].Name, "wlan")
	})
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

func formatNode(node []byte) string {
	parts := make([]string, len(node))
	for i, b := range node {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// LocalIP is the source address of the default route. The target is never contacted.
func LocalIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
