package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sewh/tinydnsproxy/internal/list"
	"github.com/sewh/tinydnsproxy/internal/upstream"
)

type (
	// The Config type contains fields used to configure the proxy.
	Config struct {
		// The address the proxy receives plaintext DNS queries on.
		Bind BindConfig `toml:"bind"`
		// Settings that apply to every block list.
		BlockLists BlockListsConfig `toml:"block_lists"`
		// The block lists to load.
		BlockList []BlockListConfig `toml:"block_list"`
		// The DNS-over-TLS servers queries are relayed to.
		DNSServers []DNSServerConfig `toml:"dns_server"`
		// Configuration for relaying queries.
		Upstream UpstreamConfig `toml:"upstream"`
		// Configuration for the UDP listener.
		Listener ListenerConfig `toml:"listener"`
		// Configuration for logging.
		Logging *LoggingConfig `toml:"logging"`
		// Enables the Prometheus metrics endpoint.
		Metrics *MetricsConfig `toml:"metrics"`
	}

	// The BindConfig type contains the address of the UDP listener.
	BindConfig struct {
		Host string `toml:"host"`
		Port uint16 `toml:"port"`
	}

	// The BlockListsConfig type contains fields that apply to every block list.
	BlockListsConfig struct {
		// How often, in minutes, block lists are reloaded. Zero disables periodic reloads.
		RefreshAfter uint64 `toml:"refresh_after"`
		// Reload block lists whenever a file block list changes on disk.
		Watch bool `toml:"watch"`
	}

	// The BlockListConfig type describes a single block list.
	BlockListConfig struct {
		// Where the list is loaded from, either "file" or "http".
		ListType string `toml:"list_type"`
		// The format of the list, either "hosts" or "one-per-line".
		Format string `toml:"format"`
		// The path of a "file" list.
		Path string `toml:"path"`
		// The URL of an "http" list.
		URL string `toml:"url"`
	}

	// The DNSServerConfig type describes a single DNS-over-TLS upstream.
	DNSServerConfig struct {
		IPAddress string `toml:"ip_address"`
		Port      uint16 `toml:"port"`
		// The name the server's certificate must be valid for.
		Hostname string `toml:"hostname"`
	}

	// The UpstreamConfig type contains fields for configuring how queries are relayed.
	UpstreamConfig struct {
		// How a server is chosen for each query, either "random" or "fastest".
		Strategy string `toml:"strategy"`
		// The deadline for relaying a single query.
		Timeout time.Duration `toml:"timeout"`
		// The path to a PEM file of certificate authorities trusted instead of the system roots.
		CAFile string `toml:"ca_file"`
	}

	// The ListenerConfig type contains fields for configuring the UDP listener.
	ListenerConfig struct {
		// The number of queries handled concurrently.
		Workers int `toml:"workers"`
		// The number of received queries that may wait for a worker.
		Queue int `toml:"queue"`
		// How long a single receive blocks before checking for shutdown.
		ReceiveTimeout time.Duration `toml:"receive_timeout"`
	}

	// The LoggingConfig type contains fields for configuring logging.
	LoggingConfig struct {
		// The minimum level logged, one of "debug", "info", "warn" or "error".
		Level string `toml:"level"`
	}

	// The MetricsConfig type contains fields for configuring the metrics endpoint.
	MetricsConfig struct {
		// The bind address of the HTTP server exposing metrics.
		Bind string `toml:"bind"`
	}
)

const (
	strategyRandom  = "random"
	strategyFastest = "fastest"
)

// DefaultConfig returns a Config type containing the default values of every optional field. It has no upstreams, so
// it is not valid on its own.
func DefaultConfig() Config {
	return Config{
		Bind: BindConfig{
			Host: "127.0.0.1",
			Port: 53,
		},
		Upstream: UpstreamConfig{
			Strategy: strategyRandom,
			Timeout:  time.Minute,
		},
		Listener: ListenerConfig{
			Workers:        64,
			Queue:          256,
			ReceiveTimeout: time.Second,
		},
	}
}

// LoadConfig the configuration file at the specified path. The configuration file is expected in TOML format. Fields
// missing from the file keep the values of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate the configuration fields.
func (c *Config) Validate() error {
	errs := []error{
		c.Bind.validate(),
		c.Upstream.validate(),
		c.Listener.validate(),
	}

	if len(c.DNSServers) == 0 {
		errs = append(errs, errors.New("no dns servers specified"))
	}

	for i, server := range c.DNSServers {
		if err := server.validate(); err != nil {
			errs = append(errs, fmt.Errorf("dns_server %d: %w", i, err))
		}
	}

	for i, bl := range c.BlockList {
		if _, err := bl.Source(); err != nil {
			errs = append(errs, fmt.Errorf("block_list %d: %w", i, err))
		}
	}

	if c.Logging != nil {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
		}
	}

	if c.Metrics != nil && c.Metrics.Bind == "" {
		errs = append(errs, errors.New("metrics bind address must be specified when using metrics"))
	}

	return errors.Join(errs...)
}

// Address returns the host:port pair to listen on.
func (c BindConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

func (c BindConfig) validate() error {
	if c.Host == "" {
		return errors.New("bind host must be specified")
	}

	return nil
}

// RefreshInterval returns how often block lists are reloaded.
func (c BlockListsConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshAfter) * time.Minute
}

// Source converts the configuration into the list.Source it describes.
func (c BlockListConfig) Source() (list.Source, error) {
	typ, err := list.ParseType(c.ListType)
	if err != nil {
		return list.Source{}, err
	}

	format, err := list.ParseFormat(c.Format)
	if err != nil {
		return list.Source{}, err
	}

	source := list.Source{Type: typ, Format: format}
	switch typ {
	case list.TypeHTTP:
		if c.URL == "" {
			return list.Source{}, errors.New("url must be specified for http block lists")
		}

		source.Location = c.URL
	default:
		if c.Path == "" {
			return list.Source{}, errors.New("path must be specified for file block lists")
		}

		source.Location = c.Path
	}

	return source, nil
}

// Server converts the configuration into the upstream.Server it describes.
func (c DNSServerConfig) Server() upstream.Server {
	return upstream.Server{
		IP:       c.IPAddress,
		Port:     c.Port,
		Hostname: c.Hostname,
	}
}

func (c DNSServerConfig) validate() error {
	var errs []error
	if net.ParseIP(c.IPAddress) == nil {
		errs = append(errs, fmt.Errorf("invalid ip address %q", c.IPAddress))
	}

	if c.Port == 0 {
		errs = append(errs, errors.New("port must be specified"))
	}

	if c.Hostname == "" {
		errs = append(errs, errors.New("hostname must be specified"))
	}

	return errors.Join(errs...)
}

func (c UpstreamConfig) validate() error {
	var errs []error
	switch c.Strategy {
	case strategyRandom, strategyFastest:
	default:
		errs = append(errs, fmt.Errorf("unknown upstream strategy %q", c.Strategy))
	}

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("upstream timeout must be greater than zero"))
	}

	return errors.Join(errs...)
}

func (c ListenerConfig) validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, errors.New("listener workers must be greater than zero"))
	}

	if c.Queue <= 0 {
		errs = append(errs, errors.New("listener queue must be greater than zero"))
	}

	if c.ReceiveTimeout <= 0 {
		errs = append(errs, errors.New("listener receive timeout must be greater than zero"))
	}

	return errors.Join(errs...)
}
