package consumer

import (
	"context"
	"time"

	"github.com/form3tech-oss/pact-consumer/internal/app/mockserver"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

// Config configures the mock provider of a consumer test. The zero value serves plain
// HTTP on an ephemeral port of 127.0.0.1 and does not write the pact.
type Config struct {
	Host        string `env:"PACT_MOCK_HOST,default=127.0.0.1"`
	Port        int    `env:"PACT_MOCK_PORT"` // 0 picks an ephemeral port
	TLS         bool   `env:"PACT_MOCK_TLS"`
	TLSCertFile string `env:"PACT_MOCK_TLS_CERT_FILE"` // self-signed when empty
	TLSKeyFile  string `env:"PACT_MOCK_TLS_KEY_FILE"`

	// SpecVersion overrides the version of the pact when set.
	SpecVersion matchingrules.SpecVersion `env:"PACT_SPECIFICATION_VERSION"`
	// PactDir is where passing runs write <consumer>-<provider>.json.
	PactDir       string `env:"PACT_DIR"`
	StrictObjects bool   `env:"PACT_MATCHING_STRICT_OBJECTS"`
	WildcardKeys  bool   `env:"PACT_MATCHING_WILDCARD_KEYS"`

	StartTimeout     time.Duration `env:"PACT_MOCK_START_TIMEOUT,default=5s"`
	ShutdownGrace    time.Duration `env:"PACT_MOCK_SHUTDOWN_GRACE,default=2s"`
	UnexpectedStatus int           `env:"PACT_MOCK_UNEXPECTED_STATUS,default=500"`
}

func NewConfigFromEnv() (Config, error) {
	var config Config
	if err := envconfig.Process(context.Background(), &config); err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	log.WithFields(log.Fields{
		"host":     config.Host,
		"port":     config.Port,
		"tls":      config.TLS,
		"pact_dir": config.PactDir,
	}).Debug("consumer test configuration loaded")
	return config, nil
}

func (c Config) version(fallback matchingrules.SpecVersion) matchingrules.SpecVersion {
	if c.SpecVersion != 0 {
		return c.SpecVersion
	}
	if fallback != 0 {
		return fallback
	}
	return matchingrules.V3
}

func (c Config) matching(v matchingrules.SpecVersion) matching.Config {
	return matching.Config{
		StrictObjects: c.StrictObjects,
		WildcardKeys:  c.WildcardKeys,
		SpecVersion:   v,
	}
}

func (c Config) mockServer(v matchingrules.SpecVersion) mockserver.Config {
	return mockserver.Config{
		Host:             c.Host,
		Port:             c.Port,
		TLS:              c.TLS,
		TLSCertFile:      c.TLSCertFile,
		TLSKeyFile:       c.TLSKeyFile,
		StartTimeout:     c.StartTimeout,
		ShutdownGrace:    c.ShutdownGrace,
		Matching:         c.matching(v),
		UnexpectedStatus: c.UnexpectedStatus,
	}
}
