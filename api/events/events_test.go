package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/appkins-org/neutron-metadata/pkg/config"
	"github.com/appkins-org/neutron-metadata/pkg/hostroute"
	"github.com/appkins-org/neutron-metadata/pkg/metanet"
	"github.com/appkins-org/neutron-metadata/pkg/neutron"
	"github.com/appkins-org/neutron-metadata/pkg/schedule"
)

const testRouterID = "router-1"

// createTestHandler wires a handler against an in-memory Neutron with one
// router and one tenant subnet.
func createTestHandler(t *testing.T) (*Handler, *neutron.Fake, string) {
	t.Helper()
	fake := neutron.NewFake()
	fake.AddRouter(testRouterID)

	ctx := context.Background()
	netw, err := fake.CreateNetwork(ctx, neutron.CreateNetworkOpts{Name: "tenant", AdminStateUp: true})
	if err != nil {
		t.Fatalf("seeding network: %v", err)
	}
	sub, err := fake.CreateSubnet(ctx, neutron.CreateSubnetOpts{
		NetworkID:  netw.ID,
		CIDR:       "10.0.0.0/24",
		EnableDHCP: true,
	})
	if err != nil {
		t.Fatalf("seeding subnet: %v", err)
	}

	notifier := &schedule.Notifier{Scheduler: &schedule.Recorder{}}
	handler := &Handler{
		Orchestrator: metanet.New(fake, notifier, config.ModeIndirect),
		Routes:       &hostroute.Calculator{API: fake, Mode: config.ModeIndirect},
	}
	return handler, fake, sub.ID
}

func doRequest(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	return rr
}

func TestHandleInterfaceAdd(t *testing.T) {
	handler, fake, subnetID := createTestHandler(t)

	rr := doRequest(t, handler, "PUT", fmt.Sprintf("/v1/routers/%s/interfaces/%s", testRouterID, subnetID), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var info neutron.InterfaceInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if info.SubnetID != subnetID || info.PortID == "" {
		t.Errorf("unexpected interface info: %+v", info)
	}

	nets, err := fake.ListNetworks(context.Background(), neutron.NetworkFilter{Name: metanet.NetworkNamePrefix + testRouterID})
	if err != nil || len(nets) != 1 {
		t.Errorf("metadata network lookup: %v (%d networks)", err, len(nets))
	}
}

func TestHandleInterfaceAddUnknownRouter(t *testing.T) {
	handler, _, subnetID := createTestHandler(t)

	rr := doRequest(t, handler, "PUT", fmt.Sprintf("/v1/routers/ghost/interfaces/%s", subnetID), "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestHandleInterfaceAddConflict(t *testing.T) {
	handler, _, subnetID := createTestHandler(t)

	path := fmt.Sprintf("/v1/routers/%s/interfaces/%s", testRouterID, subnetID)
	if rr := doRequest(t, handler, "PUT", path, ""); rr.Code != http.StatusOK {
		t.Fatalf("first add status = %d", rr.Code)
	}
	if rr := doRequest(t, handler, "PUT", path, ""); rr.Code != http.StatusConflict {
		t.Errorf("second add status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestHandleInterfaceRemove(t *testing.T) {
	handler, fake, subnetID := createTestHandler(t)

	path := fmt.Sprintf("/v1/routers/%s/interfaces/%s", testRouterID, subnetID)
	if rr := doRequest(t, handler, "PUT", path, ""); rr.Code != http.StatusOK {
		t.Fatalf("add status = %d", rr.Code)
	}
	if rr := doRequest(t, handler, "DELETE", path, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	nets, err := fake.ListNetworks(context.Background(), neutron.NetworkFilter{Name: metanet.NetworkNamePrefix + testRouterID})
	if err != nil {
		t.Fatalf("ListNetworks: %v", err)
	}
	if len(nets) != 0 {
		t.Errorf("metadata network survived interface removal")
	}
}

func TestHandleRouterDeleted(t *testing.T) {
	handler, fake, subnetID := createTestHandler(t)

	addPath := fmt.Sprintf("/v1/routers/%s/interfaces/%s", testRouterID, subnetID)
	if rr := doRequest(t, handler, "PUT", addPath, ""); rr.Code != http.StatusOK {
		t.Fatalf("add status = %d", rr.Code)
	}
	if err := fake.RemoveRouterInterface(context.Background(), testRouterID, subnetID); err != nil {
		t.Fatalf("RemoveRouterInterface: %v", err)
	}

	rr := doRequest(t, handler, "DELETE", "/v1/routers/"+testRouterID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	nets, err := fake.ListNetworks(context.Background(), neutron.NetworkFilter{Name: metanet.NetworkNamePrefix + testRouterID})
	if err != nil {
		t.Fatalf("ListNetworks: %v", err)
	}
	if len(nets) != 0 {
		t.Errorf("metadata network survived router deletion")
	}
}

func TestHandleDHCPPortCreated(t *testing.T) {
	handler, fake, subnetID := createTestHandler(t)

	rr := doRequest(t, handler, "PUT", fmt.Sprintf("/v1/subnets/%s/dhcp-port", subnetID), `{"ip_address": "10.0.0.2"}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d (body: %s)", rr.Code, http.StatusNoContent, rr.Body.String())
	}

	sub, err := fake.GetSubnet(context.Background(), subnetID)
	if err != nil {
		t.Fatalf("GetSubnet: %v", err)
	}
	if len(sub.HostRoutes) != 1 || sub.HostRoutes[0].NextHop != "10.0.0.2" {
		t.Errorf("unexpected host routes: %+v", sub.HostRoutes)
	}
}

func TestHandleDHCPPortCreatedInvalidBody(t *testing.T) {
	handler, _, subnetID := createTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: "{"},
		{name: "missing address", body: "{}"},
		{name: "bad address", body: `{"ip_address": "not-an-ip"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, handler, "PUT", fmt.Sprintf("/v1/subnets/%s/dhcp-port", subnetID), tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleDHCPPortDeleted(t *testing.T) {
	handler, fake, subnetID := createTestHandler(t)

	path := fmt.Sprintf("/v1/subnets/%s/dhcp-port", subnetID)
	if rr := doRequest(t, handler, "PUT", path, `{"ip_address": "10.0.0.2"}`); rr.Code != http.StatusNoContent {
		t.Fatalf("create status = %d", rr.Code)
	}
	if rr := doRequest(t, handler, "DELETE", path, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	sub, err := fake.GetSubnet(context.Background(), subnetID)
	if err != nil {
		t.Fatalf("GetSubnet: %v", err)
	}
	if len(sub.HostRoutes) != 0 {
		t.Errorf("host routes not removed: %+v", sub.HostRoutes)
	}
}

func TestHandleHealthz(t *testing.T) {
	handler, _, _ := createTestHandler(t)

	rr := doRequest(t, handler, "GET", "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health response: %v", body)
	}
}
