// Package metanet orchestrates the per-router metadata-access network: a
// dedicated network, subnet, and router port that let instances reach the
// metadata service at 169.254.169.254 when the deployment runs in indirect
// mode.
package metanet

import (
	"context"
	"net/netip"
	"sync"

	"github.com/appkins-org/neutron-metadata/pkg/config"
	"github.com/appkins-org/neutron-metadata/pkg/neutron"
	"github.com/appkins-org/neutron-metadata/pkg/schedule"
	"github.com/rs/zerolog/log"
)

const (
	// NetworkNamePrefix prefixes the owning router ID to name the metadata
	// network.
	NetworkNamePrefix = "meta-"

	// MetadataCIDR is the link-local range metadata subnets live in. Router
	// ports inside it never count as qualifying tenant interfaces.
	MetadataCIDR = "169.254.0.0/16"

	// SubnetCIDR and GatewayIP are the fixed addressing of every metadata
	// subnet; the metadata service itself answers on 169.254.169.254.
	SubnetCIDR = "169.254.169.252/30"
	GatewayIP  = "169.254.169.253"
)

var metadataPrefix = netip.MustParsePrefix(MetadataCIDR)

// Orchestrator drives metadata network provisioning and teardown off router
// interface events. Operations on the same router are serialized.
type Orchestrator struct {
	API      neutron.API
	Notifier *schedule.Notifier
	Mode     config.MetadataMode
	Events   EventSink // optional

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns an orchestrator for the given mode.
func New(api neutron.API, notifier *schedule.Notifier, mode config.MetadataMode) *Orchestrator {
	return &Orchestrator{API: api, Notifier: notifier, Mode: mode}
}

// routerLock returns the mutex serializing operations on one router.
func (o *Orchestrator) routerLock(routerID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	if o.locks == nil {
		o.locks = make(map[string]*sync.Mutex)
	}
	if _, ok := o.locks[routerID]; !ok {
		o.locks[routerID] = &sync.Mutex{}
	}
	return o.locks[routerID]
}

// AttachSubnet adds subnetID as an interface on routerID and, when this is
// the router's first tenant interface in indirect mode, provisions the
// metadata network behind it.
//
// Provisioning is transactional: if the metadata subnet or its router
// interface cannot be created, the partial resources are rolled back in
// reverse creation order and the originating error is returned. Rollback
// failures are logged, never surfaced. The tenant interface itself is not
// detached on failure; callers observe the error and retry or detach.
func (o *Orchestrator) AttachSubnet(ctx context.Context, routerID, subnetID string) (*neutron.InterfaceInfo, error) {
	lock := o.routerLock(routerID)
	lock.Lock()
	defer lock.Unlock()

	info, err := o.API.AddRouterInterface(ctx, routerID, subnetID)
	if err != nil {
		return nil, err
	}
	if !o.Mode.RequiresMetadataNetwork() {
		return info, nil
	}

	qualifying, err := o.qualifyingInterfaceCount(ctx, routerID)
	if err != nil {
		return nil, err
	}
	if qualifying != 1 {
		// Not the first tenant interface; the metadata network already
		// exists.
		return info, nil
	}
	if existing, err := o.findMetadataNetwork(ctx, routerID); err != nil {
		return nil, err
	} else if existing != nil {
		return info, nil
	}

	if err := o.provisionMetadataNetwork(ctx, routerID); err != nil {
		return nil, err
	}
	return info, nil
}

// DetachSubnet removes the subnetID interface from routerID and tears down
// the router's metadata network once no tenant interface remains.
//
// If removing the metadata port fails, for example because it is still in
// use, the teardown aborts with that error and the metadata network and
// subnet stay intact and usable.
func (o *Orchestrator) DetachSubnet(ctx context.Context, routerID, subnetID string) error {
	lock := o.routerLock(routerID)
	lock.Lock()
	defer lock.Unlock()

	if err := o.API.RemoveRouterInterface(ctx, routerID, subnetID); err != nil {
		return err
	}
	if !o.Mode.RequiresMetadataNetwork() {
		return nil
	}

	qualifying, err := o.qualifyingInterfaceCount(ctx, routerID)
	if err != nil {
		return err
	}
	if qualifying > 0 {
		return nil
	}
	return o.teardownMetadataNetwork(ctx, routerID, true)
}

// HandleRouterDeleted cleans up any metadata network left behind after a
// router was deleted. The router interface may already be gone, so a missing
// metadata port is tolerated.
func (o *Orchestrator) HandleRouterDeleted(ctx context.Context, routerID string) error {
	lock := o.routerLock(routerID)
	lock.Lock()
	defer lock.Unlock()

	if !o.Mode.RequiresMetadataNetwork() {
		return nil
	}
	return o.teardownMetadataNetwork(ctx, routerID, false)
}

// provisionMetadataNetwork creates network, subnet, and router interface in
// order, compensating in reverse order on failure.
func (o *Orchestrator) provisionMetadataNetwork(ctx context.Context, routerID string) error {
	name := NetworkNamePrefix + routerID
	portSecurity := false
	netw, err := o.API.CreateNetwork(ctx, neutron.CreateNetworkOpts{
		Name:                name,
		AdminStateUp:        true,
		Shared:              false,
		PortSecurityEnabled: &portSecurity,
	})
	if err != nil {
		return err
	}

	sub, err := o.API.CreateSubnet(ctx, neutron.CreateSubnetOpts{
		NetworkID:  netw.ID,
		Name:       name,
		CIDR:       SubnetCIDR,
		GatewayIP:  GatewayIP,
		EnableDHCP: false,
	})
	if err != nil {
		o.rollback(ctx, routerID,
			step("delete network", func(ctx context.Context) error {
				return o.API.DeleteNetwork(ctx, netw.ID)
			}),
		)
		return err
	}

	if _, err := o.API.AddRouterInterface(ctx, routerID, sub.ID); err != nil {
		o.rollback(ctx, routerID,
			step("delete subnet", func(ctx context.Context) error {
				return o.API.DeleteSubnet(ctx, sub.ID)
			}),
			step("delete network", func(ctx context.Context) error {
				return o.API.DeleteNetwork(ctx, netw.ID)
			}),
		)
		return err
	}

	log.Info().
		Str("router_id", routerID).
		Str("network_id", netw.ID).
		Str("subnet_id", sub.ID).
		Msg("Metadata network provisioned")

	if o.Notifier != nil {
		o.Notifier.NetworkCreated(schedule.NetworkDescriptor{
			ID:                  netw.ID,
			Status:              "ACTIVE",
			Name:                netw.Name,
			AdminStateUp:        true,
			Shared:              false,
			PortSecurityEnabled: false,
			Subnets:             []string{},
			TenantID:            netw.TenantID,
		})
	}
	o.emit(Event{Type: EventMetadataNetworkCreated, RouterID: routerID, NetworkID: netw.ID})
	return nil
}

// teardownMetadataNetwork removes the metadata port, subnet, and network in
// that order. When strict is true a failed port removal aborts the teardown;
// the relaxed path (router already deleted) tolerates a missing interface.
func (o *Orchestrator) teardownMetadataNetwork(ctx context.Context, routerID string, strict bool) error {
	netw, err := o.findMetadataNetwork(ctx, routerID)
	if err != nil {
		return err
	}
	if netw == nil {
		return nil
	}

	for _, subnetID := range netw.Subnets {
		err := o.API.RemoveRouterInterface(ctx, routerID, subnetID)
		switch {
		case err == nil:
		case !strict && neutron.IsNotFound(err):
			// Interface went away with the router.
		default:
			return err
		}
		if err := o.API.DeleteSubnet(ctx, subnetID); err != nil {
			log.Warn().
				Err(err).
				Str("router_id", routerID).
				Str("subnet_id", subnetID).
				Msg("Could not delete metadata subnet")
		}
	}

	if err := o.API.DeleteNetwork(ctx, netw.ID); err != nil {
		log.Warn().
			Err(err).
			Str("router_id", routerID).
			Str("network_id", netw.ID).
			Msg("Could not delete metadata network")
		return nil
	}

	log.Info().
		Str("router_id", routerID).
		Str("network_id", netw.ID).
		Msg("Metadata network removed")
	o.emit(Event{Type: EventMetadataNetworkRemoved, RouterID: routerID, NetworkID: netw.ID})
	return nil
}

// qualifyingInterfaceCount counts the router's interface ports outside the
// metadata range. Gateway ports carry a different device owner and never
// qualify.
func (o *Orchestrator) qualifyingInterfaceCount(ctx context.Context, routerID string) (int, error) {
	ports, err := o.API.ListPorts(ctx, neutron.PortFilter{
		DeviceID:    routerID,
		DeviceOwner: neutron.DeviceOwnerRouterInterface,
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range ports {
		for _, ip := range p.FixedIPs {
			addr, err := netip.ParseAddr(ip.IPAddress)
			if err != nil || metadataPrefix.Contains(addr) {
				continue
			}
			count++
			break
		}
	}
	return count, nil
}

// findMetadataNetwork looks up the router's metadata network by name.
// Returns nil when none exists.
func (o *Orchestrator) findMetadataNetwork(ctx context.Context, routerID string) (*neutron.Network, error) {
	nets, err := o.API.ListNetworks(ctx, neutron.NetworkFilter{Name: NetworkNamePrefix + routerID})
	if err != nil {
		return nil, err
	}
	if len(nets) == 0 {
		return nil, nil
	}
	return &nets[0], nil
}

type rollbackStep struct {
	name string
	run  func(context.Context) error
}

func step(name string, run func(context.Context) error) rollbackStep {
	return rollbackStep{name: name, run: run}
}

// rollback runs compensating actions best-effort. Failures are logged and
// swallowed so the originating provisioning error is what callers see.
func (o *Orchestrator) rollback(ctx context.Context, routerID string, steps ...rollbackStep) {
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			log.Warn().
				Err(err).
				Str("router_id", routerID).
				Str("step", s.name).
				Msg("Metadata provisioning rollback step failed")
		}
	}
}

func (o *Orchestrator) emit(ev Event) {
	if o.Events != nil {
		o.Events.RecordEvent(ev)
	}
}
