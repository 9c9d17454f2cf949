package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// NetworkDescriptor is the network view handed to the scheduling subsystem
// when a metadata network has been created.
type NetworkDescriptor struct {
	ID                  string   `json:"id"`
	Status              string   `json:"status"`
	Name                string   `json:"name"`
	AdminStateUp        bool     `json:"admin_state_up"`
	Shared              bool     `json:"shared"`
	PortSecurityEnabled bool     `json:"port_security_enabled"`
	Subnets             []string `json:"subnets"`
	TenantID            string   `json:"tenant_id"`
}

// Scheduler binds a network to an agent able to serve it, typically a DHCP
// agent.
type Scheduler interface {
	ScheduleNetwork(ctx context.Context, desc NetworkDescriptor) error
}

// Notifier delivers scheduling requests asynchronously. Delivery is
// best-effort: a failure never propagates to the provisioning path, the
// network stays valid and can be scheduled later.
type Notifier struct {
	Scheduler Scheduler
	Timeout   time.Duration

	wg sync.WaitGroup
}

const defaultNotifyTimeout = 30 * time.Second

// NetworkCreated requests scheduling for a freshly created metadata network.
// It returns immediately; the request runs in the background with its own
// timeout.
func (n *Notifier) NetworkCreated(desc NetworkDescriptor) {
	if n.Scheduler == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		timeout := n.Timeout
		if timeout == 0 {
			timeout = defaultNotifyTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.Scheduler.ScheduleNetwork(ctx, desc); err != nil {
			log.Warn().
				Err(err).
				Str("network_id", desc.ID).
				Str("network_name", desc.Name).
				Msg("Metadata network scheduling request failed")
		}
	}()
}

// Wait blocks until all in-flight scheduling requests have finished. Called
// on shutdown and by tests before asserting on delivery.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Recorder is a Scheduler that records every request, for tests. Err, when
// set, is returned to the notifier on each call.
type Recorder struct {
	Err error

	mu        sync.Mutex
	scheduled []NetworkDescriptor
}

func (r *Recorder) ScheduleNetwork(_ context.Context, desc NetworkDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.scheduled = append(r.scheduled, desc)
	return nil
}

// Scheduled returns a copy of the recorded requests.
func (r *Recorder) Scheduled() []NetworkDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]NetworkDescriptor{}, r.scheduled...)
}
