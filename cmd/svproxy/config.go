package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sv2proxy/svcore/internal/cryptoops"
)

// UpstreamConfig describes one pool connection to dial and certify against.
type UpstreamConfig struct {
	Name          string `yaml:"name"`
	Addr          string `yaml:"addr"`
	AuthorityKey  string `yaml:"authority_key"`
	ChannelType   string `yaml:"channel_type"`
	WorkSelection bool   `yaml:"work_selection"`
	// Protocol is the Noise parameter string this upstream expects to
	// negotiate. Defaults to cryptoops.ProtocolName; any other value is
	// rejected by validate rather than silently accepted.
	Protocol string `yaml:"protocol"`
}

// ProxyConfig is the YAML configuration schema for svproxy.
type ProxyConfig struct {
	ListenAddr   string           `yaml:"listen_addr"`
	CertDuration time.Duration    `yaml:"cert_duration"`
	Upstreams    []UpstreamConfig `yaml:"upstreams"`
	LogLevel     string           `yaml:"log_level"`
}

// LoadConfig reads the YAML file at path, parses it into ProxyConfig, and
// validates it.
func LoadConfig(path string) (*ProxyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ProxyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.CertDuration == 0 {
		cfg.CertDuration = 24 * time.Hour
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	for i := range cfg.Upstreams {
		if cfg.Upstreams[i].Protocol == "" {
			cfg.Upstreams[i].Protocol = cryptoops.ProtocolName
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *ProxyConfig) validate() error {
	var errs []string

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		errs = append(errs, "listen_addr is required")
	}
	if len(cfg.Upstreams) == 0 {
		errs = append(errs, "at least one upstream must be defined")
	}
	for i, u := range cfg.Upstreams {
		if strings.TrimSpace(u.Addr) == "" {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: addr is required", i))
		}
		switch u.ChannelType {
		case "", "standard", "extended", "group", "group_and_extended":
		default:
			errs = append(errs, fmt.Sprintf("upstreams[%d]: unknown channel_type %q", i, u.ChannelType))
		}
		if err := cryptoops.ValidateProtocolName(u.Protocol); err != nil {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: %v", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n - %s", strings.Join(errs, "\n - "))
	}
	return nil
}
