package configuration

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/form3tech-oss/pact-consumer/internal/app/mockserver"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var servers sync.Map

type runningServer struct {
	global Config
	config ServerConfig
	pact   *pact.Pact
	server *mockserver.Server
}

// StartServers starts every configured server. Servers started before a failure keep
// running.
func StartServers(config Config) error {
	list, err := config.Servers()
	if err != nil {
		return err
	}
	for _, sc := range list {
		if _, err := StartServer(config, sc); err != nil {
			return err
		}
	}
	return nil
}

func StartServer(config Config, sc ServerConfig) (*mockserver.Server, error) {
	if _, loaded := servers.Load(sc.Name); loaded {
		return nil, errors.Errorf("mock server %q is already running", sc.Name)
	}
	rs, err := startServer(config, sc, sc.Port)
	if err != nil {
		return nil, err
	}
	if _, loaded := servers.LoadOrStore(sc.Name, rs); loaded {
		_ = rs.server.Stop()
		return nil, errors.Errorf("mock server %q is already running", sc.Name)
	}
	return rs.server, nil
}

func startServer(config Config, sc ServerConfig, port int) (*runningServer, error) {
	p, err := pact.Load(sc.Pact)
	if err != nil {
		return nil, errors.Wrapf(err, "mock server %q", sc.Name)
	}
	version := sc.SpecVersion
	if version == 0 {
		version = p.SpecVersion
	}
	server := mockserver.New(p.HTTPInteractions(), mockserver.Config{
		Host:        config.Host,
		Port:        port,
		TLS:         sc.TLS,
		TLSCertFile: sc.TLSCertFile,
		TLSKeyFile:  sc.TLSKeyFile,
		WaitDelay:   config.WaitDelay,
		Matching: matching.Config{
			StrictObjects: sc.StrictObjects,
			WildcardKeys:  sc.WildcardKeys,
			SpecVersion:   version,
		},
	})
	if err := server.Start(); err != nil {
		return nil, errors.Wrapf(err, "unable to start mock server %q", sc.Name)
	}
	log.WithFields(log.Fields{
		"server":       sc.Name,
		"pact":         sc.Pact,
		"interactions": len(p.HTTPInteractions()),
	}).Infof("serving %s", server.URL())
	return &runningServer{global: config, config: sc, pact: p, server: server}, nil
}

func loadServer(name string) (*runningServer, bool) {
	rs, loaded := servers.Load(name)
	if !loaded {
		return nil, false
	}
	return rs.(*runningServer), true
}

// ReloadServer restarts a server with the current content of its pact file, on the port
// it is bound to. A pact file that no longer loads leaves the running server untouched.
func ReloadServer(name string) error {
	rs, ok := loadServer(name)
	if !ok {
		return errors.Errorf("no mock server named %q", name)
	}
	if _, err := pact.Load(rs.config.Pact); err != nil {
		return errors.Wrapf(err, "keeping mock server %q", name)
	}

	port := rs.server.Port()
	if err := rs.server.Stop(); err != nil {
		log.WithError(err).Warnf("mock server %q did not stop cleanly", name)
	}
	next, err := startServer(rs.global, rs.config, port)
	if err != nil {
		servers.Delete(name)
		return err
	}
	servers.Store(name, next)
	log.Infof("mock server %q reloaded", name)
	return nil
}

// ServersForPact names the servers serving the pact file at path.
func ServersForPact(path string) []string {
	var names []string
	servers.Range(func(key, value interface{}) bool {
		if samePath(value.(*runningServer).config.Pact, path) {
			names = append(names, key.(string))
		}
		return true
	})
	sort.Strings(names)
	return names
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func serverNames() []string {
	var names []string
	servers.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// PactFiles lists the pact files of the running servers.
func PactFiles() []string {
	var files []string
	for _, name := range serverNames() {
		if rs, ok := loadServer(name); ok {
			files = append(files, rs.config.Pact)
		}
	}
	return files
}

func ShutdownAllServers() {
	servers.Range(func(key, _ interface{}) bool {
		rs, loaded := servers.LoadAndDelete(key)
		if loaded {
			if err := rs.(*runningServer).server.Stop(); err != nil {
				log.Error(err)
			}
		}
		return true
	})
}
