package config

import (
	"maps"
	"net/url"
	"strings"
)

// SiteConfig holds crawl overrides for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with requests to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with requests to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global crawl depth. Zero keeps the global value.
	Depth int `yaml:"depth,omitempty"`

	// MaxPages overrides the global page limit. Zero keeps the global value.
	MaxPages int `yaml:"maxPages,omitempty"`

	// ExcludePatterns are regular expressions for URLs never to fetch.
	ExcludePatterns []string `yaml:"excludePatterns,omitempty"`

	// IncludePatterns are regular expressions; when set, only matching
	// URLs are fetched.
	IncludePatterns []string `yaml:"includePatterns,omitempty"`
}

// ModelConfig holds model endpoint settings from the config file.
type ModelConfig struct {
	// Name is the chat model name.
	Name string `yaml:"name,omitempty"`

	// Vision is the model used for image captions.
	Vision string `yaml:"vision,omitempty"`

	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string `yaml:"baseURL,omitempty"`

	// APIKeyEnv names an environment variable holding the API key.
	APIKeyEnv string `yaml:"apiKeyEnv,omitempty"`
}

// File represents the structure of the .owlpair configuration file.
type File struct {
	// Model holds endpoint settings. Command-line flags take precedence.
	Model ModelConfig `yaml:"model,omitempty"`

	// Sites maps host names (e.g. "docs.example.com") to their overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every host unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host, merging the
// host-specific entry over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = maps.Clone(cf.Defaults.Headers)
	}

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.ExcludePatterns) > 0 {
		result.ExcludePatterns = siteConfig.ExcludePatterns
	}
	if len(siteConfig.IncludePatterns) > 0 {
		result.IncludePatterns = siteConfig.IncludePatterns
	}
	return result
}

// SiteConfigForURL returns the merged site configuration for the host of rawURL.
// A nil File or an unparsable URL yields the zero SiteConfig.
func (cf *File) SiteConfigForURL(rawURL string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return cf.Defaults
	}
	return cf.GetSiteConfig(u.Hostname())
}

// Apply merges the file's model settings into c where c still holds defaults.
func (cf *File) Apply(c *Config) {
	if cf == nil {
		return
	}
	if cf.Model.Name != "" && c.Model == DefaultModel {
		c.Model = cf.Model.Name
	}
	if cf.Model.Vision != "" && c.VisionModel == "" {
		c.VisionModel = cf.Model.Vision
	}
	if cf.Model.BaseURL != "" && c.BaseURL == DefaultBaseURL {
		c.BaseURL = cf.Model.BaseURL
	}
	if cf.Model.APIKeyEnv != "" && c.APIKeyEnv == "" {
		c.APIKeyEnv = cf.Model.APIKeyEnv
	}
}
