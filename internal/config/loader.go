package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".owlpair"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound. Patterns in the
// file are compiled once here so that a typo fails before any crawl starts.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}

	for _, sc := range append([]SiteConfig{cf.Defaults}, sitesOf(&cf)...) {
		if err := validatePatterns(sc.IncludePatterns); err != nil {
			return nil, err
		}
		if err := validatePatterns(sc.ExcludePatterns); err != nil {
			return nil, err
		}
	}

	return &cf, nil
}

func sitesOf(cf *File) []SiteConfig {
	out := make([]SiteConfig, 0, len(cf.Sites))
	for _, sc := range cf.Sites {
		out = append(out, sc)
	}
	return out
}

// FindConfigFile searches for the configuration file in the following order:
//  1. configPath, if specified
//  2. .owlpair in the current directory
//  3. .owlpair in the user's home directory
//  4. config.yaml in the XDG config directory
//
// It returns the path if found, or the empty string.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
