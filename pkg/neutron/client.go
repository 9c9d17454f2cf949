package neutron

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/portsecurity"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/ports"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/subnets"
	"github.com/rs/zerolog/log"
)

// Client implements API against a real Neutron deployment.
type Client struct {
	neutron *gophercloud.ServiceClient
}

// NewClient wraps a networking v2 service client.
func NewClient(sc *gophercloud.ServiceClient) *Client {
	return &Client{neutron: sc}
}

// networkExt carries the port-security extension field alongside the core
// network attributes.
type networkExt struct {
	networks.Network
	portsecurity.PortSecurityExt
}

func (n *networkExt) toNetwork() *Network {
	return &Network{
		ID:                  n.ID,
		Name:                n.Name,
		Status:              n.Status,
		AdminStateUp:        n.AdminStateUp,
		Shared:              n.Shared,
		PortSecurityEnabled: n.PortSecurityEnabled,
		Subnets:             n.Subnets,
		TenantID:            n.TenantID,
	}
}

func (c *Client) CreateNetwork(ctx context.Context, opts CreateNetworkOpts) (*Network, error) {
	adminStateUp := opts.AdminStateUp
	shared := opts.Shared
	var createOpts networks.CreateOptsBuilder = networks.CreateOpts{
		Name:         opts.Name,
		AdminStateUp: &adminStateUp,
		Shared:       &shared,
		TenantID:     opts.TenantID,
	}
	if opts.PortSecurityEnabled != nil {
		createOpts = portsecurity.NetworkCreateOptsExt{
			CreateOptsBuilder:   createOpts,
			PortSecurityEnabled: opts.PortSecurityEnabled,
		}
	}

	var n networkExt
	if err := networks.Create(ctx, c.neutron, createOpts).ExtractInto(&n); err != nil {
		return nil, classify(err, "create", "network", "", opts.Name)
	}
	return n.toNetwork(), nil
}

func (c *Client) DeleteNetwork(ctx context.Context, id string) error {
	if err := networks.Delete(ctx, c.neutron, id).ExtractErr(); err != nil {
		return classify(err, "delete", "network", "", id)
	}
	return nil
}

func (c *Client) GetNetwork(ctx context.Context, id string) (*Network, error) {
	var n networkExt
	if err := networks.Get(ctx, c.neutron, id).ExtractInto(&n); err != nil {
		return nil, classify(err, "get", "network", "", id)
	}
	return n.toNetwork(), nil
}

func (c *Client) ListNetworks(ctx context.Context, filter NetworkFilter) ([]Network, error) {
	pages, err := networks.List(c.neutron, networks.ListOpts{Name: filter.Name}).AllPages(ctx)
	if err != nil {
		return nil, classify(err, "list", "networks", "", filter.Name)
	}
	var exts []networkExt
	if err := networks.ExtractNetworksInto(pages, &exts); err != nil {
		return nil, classify(err, "list", "networks", "", filter.Name)
	}
	result := make([]Network, 0, len(exts))
	for i := range exts {
		result = append(result, *exts[i].toNetwork())
	}
	return result, nil
}

func (c *Client) CreateSubnet(ctx context.Context, opts CreateSubnetOpts) (*Subnet, error) {
	enableDHCP := opts.EnableDHCP
	createOpts := subnets.CreateOpts{
		NetworkID:  opts.NetworkID,
		Name:       opts.Name,
		CIDR:       opts.CIDR,
		IPVersion:  gophercloud.IPv4,
		EnableDHCP: &enableDHCP,
		TenantID:   opts.TenantID,
	}
	if opts.GatewayIP != "" {
		gw := opts.GatewayIP
		createOpts.GatewayIP = &gw
	}

	sub, err := subnets.Create(ctx, c.neutron, createOpts).Extract()
	if err != nil {
		return nil, classify(err, "create", "subnet", opts.NetworkID, opts.CIDR)
	}
	return fromGopherSubnet(sub), nil
}

func (c *Client) DeleteSubnet(ctx context.Context, id string) error {
	if err := subnets.Delete(ctx, c.neutron, id).ExtractErr(); err != nil {
		return classify(err, "delete", "subnet", "", id)
	}
	return nil
}

func (c *Client) GetSubnet(ctx context.Context, id string) (*Subnet, error) {
	sub, err := subnets.Get(ctx, c.neutron, id).Extract()
	if err != nil {
		return nil, classify(err, "get", "subnet", "", id)
	}
	return fromGopherSubnet(sub), nil
}

func (c *Client) UpdateSubnetHostRoutes(ctx context.Context, id string, routes []HostRoute) (*Subnet, error) {
	hr := make([]subnets.HostRoute, 0, len(routes))
	for _, r := range routes {
		hr = append(hr, subnets.HostRoute{DestinationCIDR: r.Destination, NextHop: r.NextHop})
	}
	sub, err := subnets.Update(ctx, c.neutron, id, subnets.UpdateOpts{HostRoutes: &hr}).Extract()
	if err != nil {
		return nil, classify(err, "update", "subnet", "", id)
	}
	return fromGopherSubnet(sub), nil
}

func (c *Client) AddRouterInterface(ctx context.Context, routerID, subnetID string) (*InterfaceInfo, error) {
	info, err := routers.AddInterface(ctx, c.neutron, routerID, routers.AddInterfaceOpts{SubnetID: subnetID}).Extract()
	if err != nil {
		return nil, classify(err, "add", "router interface", routerID, subnetID)
	}
	return &InterfaceInfo{RouterID: routerID, SubnetID: info.SubnetID, PortID: info.PortID}, nil
}

func (c *Client) RemoveRouterInterface(ctx context.Context, routerID, subnetID string) error {
	_, err := routers.RemoveInterface(ctx, c.neutron, routerID, routers.RemoveInterfaceOpts{SubnetID: subnetID}).Extract()
	if err != nil {
		return classify(err, "remove", "router interface", routerID, subnetID)
	}
	return nil
}

func (c *Client) GetPort(ctx context.Context, id string) (*Port, error) {
	p, err := ports.Get(ctx, c.neutron, id).Extract()
	if err != nil {
		return nil, classify(err, "get", "port", "", id)
	}
	return fromGopherPort(p), nil
}

func (c *Client) ListPorts(ctx context.Context, filter PortFilter) ([]Port, error) {
	pages, err := ports.List(c.neutron, ports.ListOpts{
		NetworkID:   filter.NetworkID,
		DeviceID:    filter.DeviceID,
		DeviceOwner: filter.DeviceOwner,
	}).AllPages(ctx)
	if err != nil {
		return nil, classify(err, "list", "ports", filter.NetworkID, "")
	}
	extracted, err := ports.ExtractPorts(pages)
	if err != nil {
		return nil, classify(err, "list", "ports", filter.NetworkID, "")
	}
	result := make([]Port, 0, len(extracted))
	for i := range extracted {
		result = append(result, *fromGopherPort(&extracted[i]))
	}
	return result, nil
}

func fromGopherSubnet(s *subnets.Subnet) *Subnet {
	routes := make([]HostRoute, 0, len(s.HostRoutes))
	for _, r := range s.HostRoutes {
		routes = append(routes, HostRoute{Destination: r.DestinationCIDR, NextHop: r.NextHop})
	}
	return &Subnet{
		ID:         s.ID,
		NetworkID:  s.NetworkID,
		Name:       s.Name,
		CIDR:       s.CIDR,
		GatewayIP:  s.GatewayIP,
		EnableDHCP: s.EnableDHCP,
		HostRoutes: routes,
		TenantID:   s.TenantID,
	}
}

func fromGopherPort(p *ports.Port) *Port {
	fixedIPs := make([]FixedIP, 0, len(p.FixedIPs))
	for _, ip := range p.FixedIPs {
		fixedIPs = append(fixedIPs, FixedIP{SubnetID: ip.SubnetID, IPAddress: ip.IPAddress})
	}
	return &Port{
		ID:          p.ID,
		NetworkID:   p.NetworkID,
		Name:        p.Name,
		Status:      p.Status,
		DeviceID:    p.DeviceID,
		DeviceOwner: p.DeviceOwner,
		FixedIPs:    fixedIPs,
	}
}

// classify maps a gophercloud error onto the error taxonomy callers rely on
// for rollback decisions.
func classify(err error, op, resource, parent, id string) error {
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	if gophercloud.ResponseCodeIs(err, http.StatusConflict) {
		return &ConflictError{Resource: resource, ID: id, Reason: err.Error()}
	}
	return &ProvisionError{Op: op, Resource: resource, Parent: parent, Err: err}
}

// WaitForAPI polls the Neutron endpoint until it responds or ctx expires.
// Used at daemon startup so the service does not flap while Neutron is still
// coming up.
func WaitForAPI(ctx context.Context, endpoint string) error {
	httpClient := &http.Client{Timeout: 5 * time.Second}

	// Some deployments return 404 for a trailing slash on the version root.
	endpoint = strings.TrimSuffix(endpoint, "/")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			log.Debug().Str("endpoint", endpoint).Msg("Waiting for Neutron API to become available...")

			r, err := httpClient.Get(endpoint)
			if err == nil {
				statusCode := r.StatusCode
				r.Body.Close()
				if statusCode == http.StatusOK {
					return nil
				}
			}

			time.Sleep(5 * time.Second)
		}
	}
}
