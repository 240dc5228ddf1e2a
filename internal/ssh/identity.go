// internal/ssh/identity.go

package ssh

const rootUser = "root"

// ConnectionIdentity is the login a transport was authenticated with.
// Two identities are the same only when both fields match.
type ConnectionIdentity struct {
	Username string
	Password string
}

// IsRoot reports whether the identity logs in as the privileged user.
func (id ConnectionIdentity) IsRoot() bool {
	return id.Username == rootUser
}

// privilegeCompatible lets a root request reuse a transport that is already
// authenticated as root, whatever password the request carried. It never
// applies to non-root requests.
func privilegeCompatible(requested ConnectionIdentity, rootConnected bool) bool {
	return requested.IsRoot() && rootConnected
}

// AddressFamily selects IPv4 or IPv6 for a transport.
type AddressFamily int

const (
	FamilyIPv4 AddressFamily = iota
	FamilyIPv6
)

func familyFor(useIPv4 bool) AddressFamily {
	if useIPv4 {
		return FamilyIPv4
	}
	return FamilyIPv6
}

func (f AddressFamily) network() string {
	if f == FamilyIPv6 {
		return "tcp6"
	}
	return "tcp4"
}

func (f AddressFamily) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}
