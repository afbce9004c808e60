package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile represents a named deployment configuration profile.
type DeploymentProfile struct {
	Name    string        `yaml:"name" json:"name"`
	Version string        `yaml:"version" json:"version"`
	Phase   string        `yaml:"phase" json:"phase"`
	Layer   string        `yaml:"layer" json:"layer"`
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
}

// GatewayConfig selects a gateway preset and caller rate limits.
type GatewayConfig struct {
	Preset  string  `yaml:"preset" json:"preset"` // "standard" | "strict" | "permissive"
	RateRPS float64 `yaml:"rate_rps" json:"rate_rps"`
	Burst   int     `yaml:"burst" json:"burst"`
}

// CacheConfig bounds the read-only validation cache.
type CacheConfig struct {
	TTLMs      int `yaml:"ttl_ms" json:"ttl_ms"`
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// ArchiveConfig selects the execution-output archive backend.
type ArchiveConfig struct {
	Backend string `yaml:"backend" json:"backend"` // "s3" | "gcs" | "none"
	Bucket  string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region  string `yaml:"region,omitempty" json:"region,omitempty"`
	Prefix  string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// LoadProfile loads a deployment profile YAML by name.
// It searches the profiles directory for profile_<name>.yaml.
func LoadProfile(profilesDir, name string) (*DeploymentProfile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}

	if profile.Name == "" {
		profile.Name = name
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile DeploymentProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Name == "" {
			// Extract name from filename: profile_strict.yaml -> strict
			base := filepath.Base(path)
			profile.Name = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Name] = &profile
	}

	return profiles, nil
}
