package neutron

import "context"

// Device owners assigned by Neutron to ports it manages.
const (
	DeviceOwnerRouterInterface = "network:router_interface"
	DeviceOwnerRouterGateway   = "network:router_gateway"
	DeviceOwnerDHCP            = "network:dhcp"
)

// Network represents a Neutron network.
type Network struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Status              string   `json:"status"`
	AdminStateUp        bool     `json:"admin_state_up"`
	Shared              bool     `json:"shared"`
	PortSecurityEnabled bool     `json:"port_security_enabled"`
	Subnets             []string `json:"subnets"`
	TenantID            string   `json:"tenant_id,omitempty"`
}

// HostRoute is a static route advertised to instances via DHCP options.
type HostRoute struct {
	Destination string `json:"destination"`
	NextHop     string `json:"nexthop"`
}

// Subnet represents a Neutron subnet.
type Subnet struct {
	ID         string      `json:"id"`
	NetworkID  string      `json:"network_id"`
	Name       string      `json:"name,omitempty"`
	CIDR       string      `json:"cidr"`
	GatewayIP  string      `json:"gateway_ip,omitempty"`
	EnableDHCP bool        `json:"enable_dhcp"`
	HostRoutes []HostRoute `json:"host_routes"`
	TenantID   string      `json:"tenant_id,omitempty"`
}

// FixedIP is an address assignment on a port.
type FixedIP struct {
	SubnetID  string `json:"subnet_id"`
	IPAddress string `json:"ip_address"`
}

// Port represents a Neutron port.
type Port struct {
	ID          string    `json:"id"`
	NetworkID   string    `json:"network_id"`
	Name        string    `json:"name,omitempty"`
	Status      string    `json:"status"`
	DeviceID    string    `json:"device_id,omitempty"`
	DeviceOwner string    `json:"device_owner,omitempty"`
	FixedIPs    []FixedIP `json:"fixed_ips"`
}

// InterfaceInfo describes a router interface attachment.
type InterfaceInfo struct {
	RouterID string `json:"router_id"`
	SubnetID string `json:"subnet_id"`
	PortID   string `json:"port_id"`
}

// CreateNetworkOpts are the settings for a new network.
type CreateNetworkOpts struct {
	Name                string
	AdminStateUp        bool
	Shared              bool
	PortSecurityEnabled *bool
	TenantID            string
}

// CreateSubnetOpts are the settings for a new subnet.
type CreateSubnetOpts struct {
	NetworkID  string
	Name       string
	CIDR       string
	GatewayIP  string
	EnableDHCP bool
	TenantID   string
}

// NetworkFilter selects networks in ListNetworks.
type NetworkFilter struct {
	Name string
}

// PortFilter selects ports in ListPorts.
type PortFilter struct {
	NetworkID   string
	DeviceID    string
	DeviceOwner string
}

// API is the set of Neutron operations this service depends on. The
// gophercloud-backed Client implements it against a real deployment; Fake
// implements it in memory for tests.
type API interface {
	CreateNetwork(ctx context.Context, opts CreateNetworkOpts) (*Network, error)
	DeleteNetwork(ctx context.Context, id string) error
	GetNetwork(ctx context.Context, id string) (*Network, error)
	ListNetworks(ctx context.Context, filter NetworkFilter) ([]Network, error)

	CreateSubnet(ctx context.Context, opts CreateSubnetOpts) (*Subnet, error)
	DeleteSubnet(ctx context.Context, id string) error
	GetSubnet(ctx context.Context, id string) (*Subnet, error)
	UpdateSubnetHostRoutes(ctx context.Context, id string, routes []HostRoute) (*Subnet, error)

	AddRouterInterface(ctx context.Context, routerID, subnetID string) (*InterfaceInfo, error)
	RemoveRouterInterface(ctx context.Context, routerID, subnetID string) error

	GetPort(ctx context.Context, id string) (*Port, error)
	ListPorts(ctx context.Context, filter PortFilter) ([]Port, error)
}
