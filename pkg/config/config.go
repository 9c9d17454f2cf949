package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// MetadataMode selects how instances reach the metadata service.
type MetadataMode string

const (
	// ModeDisabled means metadata access is not managed by this service.
	ModeDisabled MetadataMode = ""

	// ModeDirect means instances can reach the metadata service without any
	// extra provisioning; router interface events pass straight through.
	ModeDirect MetadataMode = "direct"

	// ModeIndirect means metadata access requires a dedicated per-router
	// network/subnet/port plus DHCP host routes on tenant subnets.
	ModeIndirect MetadataMode = "indirect"
)

// RequiresMetadataNetwork reports whether the mode calls for a dedicated
// metadata network per router.
func (m MetadataMode) RequiresMetadataNetwork() bool {
	return m == ModeIndirect
}

// RequiresHostRoutes reports whether the mode calls for the metadata host
// route on tenant subnets with a DHCP port.
func (m MetadataMode) RequiresHostRoutes() bool {
	return m == ModeIndirect
}

// ParseMode validates a metadata mode string.
func ParseMode(s string) (MetadataMode, error) {
	switch MetadataMode(s) {
	case ModeDisabled, ModeDirect, ModeIndirect:
		return MetadataMode(s), nil
	}
	return ModeDisabled, fmt.Errorf("invalid metadata mode %q", s)
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// NeutronConfig holds the connection settings for the Neutron API.
type NeutronConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ProjectName string `yaml:"project_name"`
	DomainName  string `yaml:"domain_name"`
	Region      string `yaml:"region"`
}

// Config is the service configuration, loaded from an optional YAML file
// with environment variable overrides.
type Config struct {
	MetadataMode  string        `yaml:"metadata_mode"`
	BindAddr      string        `yaml:"bind_addr"`
	BindPort      string        `yaml:"bind_port"`
	NotifyTimeout Duration      `yaml:"notify_timeout"`
	Neutron       NeutronConfig `yaml:"neutron"`
}

// Mode returns the validated metadata mode.
func (c *Config) Mode() (MetadataMode, error) {
	return ParseMode(c.MetadataMode)
}

// Load reads the configuration file at path (skipped when path is empty or
// the file does not exist) and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		BindAddr:      "127.0.0.1",
		BindPort:      "9697",
		NotifyTimeout: Duration(30 * time.Second),
		Neutron: NeutronConfig{
			Endpoint:   "http://localhost:9696",
			DomainName: "default",
		},
	}

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("could not read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
		}
	}

	cfg.MetadataMode = getEnvOrDefault("METADATA_MODE", cfg.MetadataMode)
	cfg.BindAddr = getEnvOrDefault("BIND_ADDR", cfg.BindAddr)
	cfg.BindPort = getEnvOrDefault("BIND_PORT", cfg.BindPort)
	cfg.Neutron.Endpoint = getEnvOrDefault("NEUTRON_URL", cfg.Neutron.Endpoint)
	cfg.Neutron.Username = getEnvOrDefault("OS_USERNAME", cfg.Neutron.Username)
	cfg.Neutron.Password = getEnvOrDefault("OS_PASSWORD", cfg.Neutron.Password)
	cfg.Neutron.ProjectName = getEnvOrDefault("OS_PROJECT_NAME", cfg.Neutron.ProjectName)
	cfg.Neutron.DomainName = getEnvOrDefault("OS_USER_DOMAIN_NAME", cfg.Neutron.DomainName)
	cfg.Neutron.Region = getEnvOrDefault("OS_REGION_NAME", cfg.Neutron.Region)

	if _, err := cfg.Mode(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
