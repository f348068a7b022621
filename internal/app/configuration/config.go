package configuration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	defaultDelay    = 500 * time.Millisecond
	defaultDuration = 15 * time.Second
)

// Config configures the stub server that serves pact files outside of a consumer test.
type Config struct {
	AdminPort    int           `env:"ADMIN_PORT,default=8080"`
	Host         string        `env:"PACT_MOCK_HOST,default=127.0.0.1"` // Host the mock servers listen on
	PactFiles    []string      `env:"PACT_FILES,delimiter=;"`          // Pact files to serve, each on an ephemeral port
	ServersFile  string        `env:"PACT_MOCK_CONFIG"`                // Optional YAML file listing servers
	Watch        bool          `env:"PACT_WATCH"`                      // Reload servers when their pact file changes
	WaitDelay    time.Duration `env:"WAIT_DELAY"`                      // Default Delay for the wait endpoint
	WaitDuration time.Duration `env:"WAIT_DURATION"`                   // Default Duration for the wait endpoint
	LogLevel     string        `env:"LOG_LEVEL,default=info"`
}

// ServerConfig is one mock server of the stub server.
type ServerConfig struct {
	Name          string                    `yaml:"name" json:"name"`
	Pact          string                    `yaml:"pact" json:"pact"`
	Port          int                       `yaml:"port" json:"port"`
	TLS           bool                      `yaml:"tls" json:"tls"`
	TLSCertFile   string                    `yaml:"tlsCertFile" json:"tls_cert_file,omitempty"`
	TLSKeyFile    string                    `yaml:"tlsKeyFile" json:"tls_key_file,omitempty"`
	StrictObjects bool                      `yaml:"strictObjects" json:"strict_objects"`
	WildcardKeys  bool                      `yaml:"wildcardKeys" json:"wildcard_keys"`
	SpecVersion   matchingrules.SpecVersion `yaml:"-" json:"-"`
	Version       string                    `yaml:"specificationVersion" json:"specification_version,omitempty"`
}

type serversFile struct {
	Servers []ServerConfig `yaml:"servers"`
}

func NewFromEnv() (Config, error) {
	ctx := context.Background()

	var config Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	if config.WaitDelay == 0 {
		config.WaitDelay = defaultDelay
	}
	if config.WaitDuration == 0 {
		config.WaitDuration = defaultDuration
	}
	return config, nil
}

// Servers lists the servers of the servers file followed by one server per pact file.
// Servers from pact files are named after the file.
func (c Config) Servers() ([]ServerConfig, error) {
	var servers []ServerConfig
	if c.ServersFile != "" {
		fromFile, err := LoadServersFile(c.ServersFile)
		if err != nil {
			return nil, err
		}
		servers = append(servers, fromFile...)
	}
	for _, path := range c.PactFiles {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		servers = append(servers, ServerConfig{Name: name, Pact: path})
	}

	seen := map[string]bool{}
	for _, s := range servers {
		if seen[s.Name] {
			return nil, errors.Errorf("server %q is configured twice", s.Name)
		}
		seen[s.Name] = true
	}
	return servers, nil
}

// LoadServersFile reads a YAML servers file. Relative pact paths are resolved against the
// directory of the file.
func LoadServersFile(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read servers file %s", path)
	}
	var file serversFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "unable to parse servers file %s", path)
	}
	for i := range file.Servers {
		s := &file.Servers[i]
		if s.Name == "" || s.Pact == "" {
			return nil, errors.Errorf("server %d of %s needs a name and a pact", i+1, path)
		}
		if !filepath.IsAbs(s.Pact) {
			s.Pact = filepath.Join(filepath.Dir(path), s.Pact)
		}
		if s.Version != "" {
			v, err := matchingrules.ParseSpecVersion(s.Version)
			if err != nil {
				return nil, errors.Wrapf(err, "server %q", s.Name)
			}
			s.SpecVersion = v
		}
	}
	return file.Servers, nil
}
