package main

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/appkins-org/neutron-metadata/api/events"
	"github.com/appkins-org/neutron-metadata/pkg/config"
	"github.com/appkins-org/neutron-metadata/pkg/hostroute"
	"github.com/appkins-org/neutron-metadata/pkg/metanet"
	"github.com/appkins-org/neutron-metadata/pkg/neutron"
	"github.com/appkins-org/neutron-metadata/pkg/schedule"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	mode, _ := cfg.Mode()

	log.Info().
		Str("neutron_url", cfg.Neutron.Endpoint).
		Str("metadata_mode", string(mode)).
		Str("bind_addr", cfg.BindAddr).
		Str("bind_port", cfg.BindPort).
		Msg("Starting neutron-metadata service")

	// Initialize Neutron client
	ctx := context.Background()
	neutronClient, err := createNeutronClient(ctx, cfg.Neutron)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Neutron client")
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Minute)
	if err := neutron.WaitForAPI(waitCtx, cfg.Neutron.Endpoint); err != nil {
		cancelWait()
		log.Fatal().Err(err).Msg("Neutron API did not become available")
	}
	cancelWait()

	api := neutron.NewClient(neutronClient)
	notifier := &schedule.Notifier{
		Scheduler: schedule.NewAgentScheduler(neutronClient),
		Timeout:   cfg.NotifyTimeout.Std(),
	}

	handler := &events.Handler{
		Orchestrator: metanet.New(api, notifier, mode),
		Routes:       &hostroute.Calculator{API: api, Mode: mode},
	}

	// Parse bind address
	addr, err := netip.ParseAddrPort(fmt.Sprintf("%s:%s", cfg.BindAddr, cfg.BindPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse bind address")
	}

	// Create HTTP server
	server := &http.Server{
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("address", addr.String()).Msg("Starting HTTP server")
		if err := events.ListenAndServe(ctx, addr, server); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Drain in-flight scheduling notifications before exiting.
	notifier.Wait()

	log.Info().Msg("Server exited")
}

func createNeutronClient(ctx context.Context, cfg config.NeutronConfig) (*gophercloud.ServiceClient, error) {
	// If no credentials provided, talk to the endpoint directly in no-auth
	// mode, as standalone deployments allow.
	if cfg.Username == "" {
		provider := &gophercloud.ProviderClient{
			IdentityBase: cfg.Endpoint,
		}

		client := &gophercloud.ServiceClient{
			ProviderClient: provider,
			Endpoint:       cfg.Endpoint + "/v2.0/",
		}

		return client, nil
	}

	authOpts := gophercloud.AuthOptions{
		IdentityEndpoint: cfg.Endpoint,
		Username:         cfg.Username,
		Password:         cfg.Password,
		TenantName:       cfg.ProjectName,
		DomainName:       cfg.DomainName,
		AllowReauth:      true,
	}

	provider, err := openstack.AuthenticatedClient(ctx, authOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	client, err := openstack.NewNetworkV2(provider, gophercloud.EndpointOpts{
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create networking client: %w", err)
	}

	return client, nil
}
