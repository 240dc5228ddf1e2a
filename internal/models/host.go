// internal/models/host.go

package models

import (
	"errors"
	"net"
	"strconv"
)

const DefaultSSHPort = 22

// Host is one target machine of the product under test.
type Host struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Description  string `mapstructure:"description" yaml:"description"`
	IPv4         string `mapstructure:"ipv4" yaml:"ipv4"`
	IPv6         string `mapstructure:"ipv6" yaml:"ipv6"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	RootPassword string `mapstructure:"root_password" yaml:"root_password"`
	// Hostname is the remote machine's own hostname as shown in its shell
	// prompt ("root@<hostname>").
	Hostname string `mapstructure:"hostname" yaml:"hostname"`
}

// Validate checks the addresses, port and login of the host.
func (h *Host) Validate() error {
	if h.IPv4 == "" && h.IPv6 == "" {
		return errors.New("host needs an ipv4 or ipv6 address")
	}
	if h.IPv4 != "" {
		if ip := net.ParseIP(h.IPv4); ip == nil || ip.To4() == nil {
			return errors.New("invalid ipv4 address: " + h.IPv4)
		}
	}
	if h.IPv6 != "" {
		if ip := net.ParseIP(h.IPv6); ip == nil || ip.To4() != nil {
			return errors.New("invalid ipv6 address: " + h.IPv6)
		}
	}
	if h.Port < 0 || h.Port > 65535 {
		return errors.New("invalid port: " + strconv.Itoa(h.Port))
	}
	if h.Username == "" {
		return errors.New("username cannot be empty")
	}
	return nil
}

// Address returns host:port for the requested address family. It falls back
// to the other family only when the requested one is not configured.
func (h *Host) Address(useIPv4 bool) string {
	ip := h.IPv6
	if useIPv4 && h.IPv4 != "" || h.IPv6 == "" {
		ip = h.IPv4
	}
	return net.JoinHostPort(ip, strconv.Itoa(h.SSHPort()))
}

// SSHPort returns the configured port or 22.
func (h *Host) SSHPort() int {
	if h.Port == 0 {
		return DefaultSSHPort
	}
	return h.Port
}

// DisplayName returns Name, or the first configured address.
func (h *Host) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	if h.IPv4 != "" {
		return h.IPv4
	}
	return h.IPv6
}
