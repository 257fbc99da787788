package broker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LoadDir reads every .yaml/.yml broker definition under dir into a
// registry. Invalid files are skipped with a warning so one bad
// definition does not take the whole catalog down; definitions gated on a
// newer engine via min_engine are skipped silently at debug level.
func LoadDir(dir, engineVersion string, logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read broker definitions dir: %w", err)
	}

	var current *semver.Version
	if engineVersion != "" {
		current, err = semver.NewVersion(engineVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid engine version %q: %w", engineVersion, err)
		}
	}

	reg := NewRegistry()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		def, err := loadFile(path)
		if err != nil {
			logger.WithError(err).Warnf("Skipping broker definition %s", entry.Name())
			continue
		}

		if def.MinEngine != "" && current != nil {
			constraint, err := semver.NewConstraint(">= " + def.MinEngine)
			if err != nil {
				logger.WithError(err).Warnf("Broker %s has invalid min_engine %q", def.ID, def.MinEngine)
				continue
			}
			if !constraint.Check(current) {
				logger.Debugf("Broker %s requires engine >= %s, skipping", def.ID, def.MinEngine)
				continue
			}
		}

		reg.Add(def)
	}

	logger.Infof("Loaded %d broker definitions from %s", reg.Len(), dir)
	return reg, nil
}

func loadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
