package schedule

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/agents"
)

const dhcpAgentType = "DHCP agent"

// AgentScheduler binds networks to an alive DHCP agent through the Neutron
// agent scheduling extension.
type AgentScheduler struct {
	neutron *gophercloud.ServiceClient
}

// NewAgentScheduler wraps a networking v2 service client.
func NewAgentScheduler(sc *gophercloud.ServiceClient) *AgentScheduler {
	return &AgentScheduler{neutron: sc}
}

func (s *AgentScheduler) ScheduleNetwork(ctx context.Context, desc NetworkDescriptor) error {
	alive := true
	pages, err := agents.List(s.neutron, agents.ListOpts{
		AgentType: dhcpAgentType,
		Alive:     &alive,
	}).AllPages(ctx)
	if err != nil {
		return fmt.Errorf("could not list DHCP agents: %w", err)
	}
	candidates, err := agents.ExtractAgents(pages)
	if err != nil {
		return fmt.Errorf("could not list DHCP agents: %w", err)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no alive DHCP agent available for network %s", desc.ID)
	}

	return agents.ScheduleDHCPNetwork(ctx, s.neutron, candidates[0].ID, agents.ScheduleDHCPNetworkOpts{
		NetworkID: desc.ID,
	}).ExtractErr()
}
