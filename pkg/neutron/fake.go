package neutron

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
)

// Fake is an in-memory implementation of API for tests. The hook fields
// allow deterministic failure injection at each provisioning step: a hook
// returning a non-nil error fails the call before any state changes.
type Fake struct {
	CreateNetworkHook   func(opts CreateNetworkOpts) error
	CreateSubnetHook    func(opts CreateSubnetOpts) error
	DeleteNetworkHook   func(id string) error
	DeleteSubnetHook    func(id string) error
	AddInterfaceHook    func(routerID, subnetID string) error
	RemoveInterfaceHook func(routerID, subnetID string) error

	mu       sync.Mutex
	networks map[string]*Network
	subnets  map[string]*Subnet
	ports    map[string]*Port
	routers  map[string]bool
	seq      int
}

// NewFake returns an empty in-memory Neutron.
func NewFake() *Fake {
	return &Fake{
		networks: make(map[string]*Network),
		subnets:  make(map[string]*Subnet),
		ports:    make(map[string]*Port),
		routers:  make(map[string]bool),
	}
}

// AddRouter seeds a router. Router CRUD is outside the API capability set,
// but interface operations validate the router exists.
func (f *Fake) AddRouter(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routers[id] = true
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%04d", prefix, f.seq)
}

func (f *Fake) CreateNetwork(_ context.Context, opts CreateNetworkOpts) (*Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateNetworkHook != nil {
		if err := f.CreateNetworkHook(opts); err != nil {
			return nil, err
		}
	}
	portSecurity := true
	if opts.PortSecurityEnabled != nil {
		portSecurity = *opts.PortSecurityEnabled
	}
	n := &Network{
		ID:                  f.nextID("net"),
		Name:                opts.Name,
		Status:              "ACTIVE",
		AdminStateUp:        opts.AdminStateUp,
		Shared:              opts.Shared,
		PortSecurityEnabled: portSecurity,
		Subnets:             []string{},
		TenantID:            opts.TenantID,
	}
	f.networks[n.ID] = n
	return copyNetwork(n), nil
}

func (f *Fake) DeleteNetwork(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteNetworkHook != nil {
		if err := f.DeleteNetworkHook(id); err != nil {
			return err
		}
	}
	n, ok := f.networks[id]
	if !ok {
		return &NotFoundError{Resource: "network", ID: id}
	}
	for _, p := range f.ports {
		if p.NetworkID == id {
			return &ConflictError{Resource: "network", ID: id, Reason: "one or more ports still in use"}
		}
	}
	// Subnet deletion cascades with the network once no ports remain.
	for _, subID := range n.Subnets {
		delete(f.subnets, subID)
	}
	delete(f.networks, id)
	return nil
}

func (f *Fake) GetNetwork(_ context.Context, id string) (*Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.networks[id]
	if !ok {
		return nil, &NotFoundError{Resource: "network", ID: id}
	}
	return copyNetwork(n), nil
}

func (f *Fake) ListNetworks(_ context.Context, filter NetworkFilter) ([]Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []Network
	for _, n := range f.networks {
		if filter.Name != "" && n.Name != filter.Name {
			continue
		}
		result = append(result, *copyNetwork(n))
	}
	return result, nil
}

func (f *Fake) CreateSubnet(_ context.Context, opts CreateSubnetOpts) (*Subnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateSubnetHook != nil {
		if err := f.CreateSubnetHook(opts); err != nil {
			return nil, err
		}
	}
	n, ok := f.networks[opts.NetworkID]
	if !ok {
		return nil, &NotFoundError{Resource: "network", ID: opts.NetworkID}
	}
	if _, err := netip.ParsePrefix(opts.CIDR); err != nil {
		return nil, &ProvisionError{Op: "create", Resource: "subnet", Parent: opts.NetworkID, Err: err}
	}
	s := &Subnet{
		ID:         f.nextID("subnet"),
		NetworkID:  opts.NetworkID,
		Name:       opts.Name,
		CIDR:       opts.CIDR,
		GatewayIP:  opts.GatewayIP,
		EnableDHCP: opts.EnableDHCP,
		HostRoutes: []HostRoute{},
		TenantID:   opts.TenantID,
	}
	if s.GatewayIP == "" {
		prefix := netip.MustParsePrefix(opts.CIDR)
		s.GatewayIP = prefix.Masked().Addr().Next().String()
	}
	f.subnets[s.ID] = s
	n.Subnets = append(n.Subnets, s.ID)
	return copySubnet(s), nil
}

func (f *Fake) DeleteSubnet(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteSubnetHook != nil {
		if err := f.DeleteSubnetHook(id); err != nil {
			return err
		}
	}
	s, ok := f.subnets[id]
	if !ok {
		return &NotFoundError{Resource: "subnet", ID: id}
	}
	for _, p := range f.ports {
		for _, ip := range p.FixedIPs {
			if ip.SubnetID == id {
				return &ConflictError{Resource: "subnet", ID: id, Reason: "one or more ports have an allocation on this subnet"}
			}
		}
	}
	if n, ok := f.networks[s.NetworkID]; ok {
		n.Subnets = removeString(n.Subnets, id)
	}
	delete(f.subnets, id)
	return nil
}

func (f *Fake) GetSubnet(_ context.Context, id string) (*Subnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subnets[id]
	if !ok {
		return nil, &NotFoundError{Resource: "subnet", ID: id}
	}
	return copySubnet(s), nil
}

func (f *Fake) UpdateSubnetHostRoutes(_ context.Context, id string, routes []HostRoute) (*Subnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subnets[id]
	if !ok {
		return nil, &NotFoundError{Resource: "subnet", ID: id}
	}
	s.HostRoutes = append([]HostRoute{}, routes...)
	return copySubnet(s), nil
}

func (f *Fake) AddRouterInterface(_ context.Context, routerID, subnetID string) (*InterfaceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddInterfaceHook != nil {
		if err := f.AddInterfaceHook(routerID, subnetID); err != nil {
			return nil, err
		}
	}
	if !f.routers[routerID] {
		return nil, &NotFoundError{Resource: "router", ID: routerID}
	}
	s, ok := f.subnets[subnetID]
	if !ok {
		return nil, &NotFoundError{Resource: "subnet", ID: subnetID}
	}
	for _, p := range f.ports {
		if p.DeviceOwner != DeviceOwnerRouterInterface {
			continue
		}
		for _, ip := range p.FixedIPs {
			if ip.SubnetID == subnetID {
				return nil, &ConflictError{Resource: "subnet", ID: subnetID, Reason: "subnet already has a router interface"}
			}
		}
	}
	addr, err := f.allocateIP(s)
	if err != nil {
		return nil, &ProvisionError{Op: "add", Resource: "router interface", Parent: routerID, Err: err}
	}
	p := &Port{
		ID:          f.nextID("port"),
		NetworkID:   s.NetworkID,
		Status:      "ACTIVE",
		DeviceID:    routerID,
		DeviceOwner: DeviceOwnerRouterInterface,
		FixedIPs:    []FixedIP{{SubnetID: subnetID, IPAddress: addr}},
	}
	f.ports[p.ID] = p
	return &InterfaceInfo{RouterID: routerID, SubnetID: subnetID, PortID: p.ID}, nil
}

func (f *Fake) RemoveRouterInterface(_ context.Context, routerID, subnetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveInterfaceHook != nil {
		if err := f.RemoveInterfaceHook(routerID, subnetID); err != nil {
			return err
		}
	}
	if !f.routers[routerID] {
		return &NotFoundError{Resource: "router", ID: routerID}
	}
	for id, p := range f.ports {
		if p.DeviceID != routerID || p.DeviceOwner != DeviceOwnerRouterInterface {
			continue
		}
		for _, ip := range p.FixedIPs {
			if ip.SubnetID == subnetID {
				delete(f.ports, id)
				return nil
			}
		}
	}
	return &NotFoundError{Resource: "router interface", ID: subnetID}
}

func (f *Fake) GetPort(_ context.Context, id string) (*Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.ports[id]
	if !ok {
		return nil, &NotFoundError{Resource: "port", ID: id}
	}
	return copyPort(p), nil
}

func (f *Fake) ListPorts(_ context.Context, filter PortFilter) ([]Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []Port
	for _, p := range f.ports {
		if filter.NetworkID != "" && p.NetworkID != filter.NetworkID {
			continue
		}
		if filter.DeviceID != "" && p.DeviceID != filter.DeviceID {
			continue
		}
		if filter.DeviceOwner != "" && p.DeviceOwner != filter.DeviceOwner {
			continue
		}
		result = append(result, *copyPort(p))
	}
	return result, nil
}

// allocateIP picks the gateway address for a router interface when free,
// matching Neutron, and falls back to the lowest free host address.
func (f *Fake) allocateIP(s *Subnet) (string, error) {
	used := make(map[string]bool)
	for _, p := range f.ports {
		for _, ip := range p.FixedIPs {
			if ip.SubnetID == s.ID {
				used[ip.IPAddress] = true
			}
		}
	}
	if s.GatewayIP != "" && !used[s.GatewayIP] {
		return s.GatewayIP, nil
	}
	prefix, err := netip.ParsePrefix(s.CIDR)
	if err != nil {
		return "", err
	}
	for addr := prefix.Masked().Addr().Next(); prefix.Contains(addr); addr = addr.Next() {
		a := addr.String()
		if !used[a] {
			return a, nil
		}
	}
	return "", fmt.Errorf("no addresses left in %s", s.CIDR)
}

func copyNetwork(n *Network) *Network {
	c := *n
	c.Subnets = append([]string{}, n.Subnets...)
	return &c
}

func copySubnet(s *Subnet) *Subnet {
	c := *s
	c.HostRoutes = append([]HostRoute{}, s.HostRoutes...)
	return &c
}

func copyPort(p *Port) *Port {
	c := *p
	c.FixedIPs = append([]FixedIP{}, p.FixedIPs...)
	return &c
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
