package pact

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// fileLocks serialises writers of the same pact file within the process.
var fileLocks sync.Map

// Write stores the pact as <consumer>-<provider>.json in dir. Interactions already in an
// existing file are kept, and the new ones are appended after them.
func (p *Pact) Write(dir string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if err := p.ValidateForVersion(p.SpecVersion); err != nil {
		return "", err
	}

	path := filepath.Join(dir, p.FileName())
	lock, _ := fileLocks.LoadOrStore(path, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	merged := p
	if _, err := os.Stat(path); err == nil {
		existing, err := Load(path)
		if err != nil {
			return "", err
		}
		existing.SpecVersion = p.SpecVersion
		if err := existing.Merge(p); err != nil {
			return "", errors.Wrapf(err, "unable to merge into %s", path)
		}
		merged = existing
		log.Debugf("merged %d interaction(s) into %s", len(p.Interactions), path)
	}

	data, err := merged.ToJSON()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "unable to create pact directory %s", dir)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "unable to write pact file %s", path)
	}
	log.Infof("pact written to %s", path)
	return path, nil
}
