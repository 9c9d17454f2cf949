// Package hostroute maintains the metadata host route on tenant subnets:
// a 169.254.169.254/32 route pointing at the subnet's DHCP port, advertised
// to instances through DHCP options.
package hostroute

import (
	"context"

	"github.com/appkins-org/neutron-metadata/pkg/config"
	"github.com/appkins-org/neutron-metadata/pkg/neutron"
	"github.com/rs/zerolog/log"
)

// Destination is the metadata service address the host route covers.
const Destination = "169.254.169.254/32"

// Calculator reacts to DHCP port lifecycle events on tenant subnets.
type Calculator struct {
	API  neutron.API
	Mode config.MetadataMode
}

// DHCPPortCreated records the metadata route on the subnet, pointing at the
// DHCP port's address. Idempotent: the route is keyed by destination, so a
// second call replaces the nexthop. Routes with other destinations are left
// untouched.
func (c *Calculator) DHCPPortCreated(ctx context.Context, subnetID, ip string) error {
	if !c.Mode.RequiresHostRoutes() {
		return nil
	}
	sub, err := c.API.GetSubnet(ctx, subnetID)
	if err != nil {
		return err
	}

	routes := make([]neutron.HostRoute, 0, len(sub.HostRoutes)+1)
	for _, r := range sub.HostRoutes {
		if r.Destination == Destination {
			if r.NextHop == ip {
				return nil
			}
			continue
		}
		routes = append(routes, r)
	}
	routes = append(routes, neutron.HostRoute{Destination: Destination, NextHop: ip})

	if _, err := c.API.UpdateSubnetHostRoutes(ctx, subnetID, routes); err != nil {
		return err
	}
	log.Info().
		Str("subnet_id", subnetID).
		Str("nexthop", ip).
		Msg("Metadata host route set")
	return nil
}

// DHCPPortDeleted removes the metadata route from the subnet. No-op when the
// route is absent.
func (c *Calculator) DHCPPortDeleted(ctx context.Context, subnetID string) error {
	if !c.Mode.RequiresHostRoutes() {
		return nil
	}
	sub, err := c.API.GetSubnet(ctx, subnetID)
	if err != nil {
		return err
	}

	routes := make([]neutron.HostRoute, 0, len(sub.HostRoutes))
	found := false
	for _, r := range sub.HostRoutes {
		if r.Destination == Destination {
			found = true
			continue
		}
		routes = append(routes, r)
	}
	if !found {
		return nil
	}

	if _, err := c.API.UpdateSubnetHostRoutes(ctx, subnetID, routes); err != nil {
		return err
	}
	log.Info().
		Str("subnet_id", subnetID).
		Msg("Metadata host route removed")
	return nil
}
