// Package station reports whether the gateway has an uplink to the outside
// network.
package station

import (
	"net"

	"github.com/charmbracelet/log"
)

// Station is the access point the gateway uses for external connectivity.
// On a host the uplink is a network interface; SSID and Password are carried
// for radios that join the access point themselves.
type Station struct {
	SSID     string
	Password string
	// Interface names the uplink interface. Empty means any interface that
	// is up and not loopback.
	Interface string

	logger     *log.Logger
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

func New(ssid, password, iface string, logger *log.Logger) *Station {
	if logger == nil {
		logger = log.Default()
	}
	return &Station{
		SSID:       ssid,
		Password:   password,
		Interface:  iface,
		logger:     logger,
		interfaces: net.Interfaces,
		addrs: func(i net.Interface) ([]net.Addr, error) {
			return i.Addrs()
		},
	}
}

// Up reports whether an uplink interface is up with a routable address.
func (s *Station) Up() bool {
	ifaces, err := s.interfaces()
	if err != nil {
		s.logger.Debug("listing interfaces", "err", err)
		return false
	}
	for _, ifi := range ifaces {
		if s.Interface != "" && ifi.Name != s.Interface {
			continue
		}
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := s.addrs(ifi)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipnet.IP; !ip.IsLoopback() && !ip.IsLinkLocalUnicast() && !ip.IsUnspecified() {
				return true
			}
		}
	}
	return false
}
