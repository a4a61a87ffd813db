package config

import "time"

// SiteConfig holds site-specific configuration for a single host.
// This allows customizing crawl behavior per hospital site.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// ExcludePatterns are extra regular expressions matched against raw
	// hrefs. They are added to, never replace, the global patterns.
	ExcludePatterns []string `yaml:"excludePatterns,omitempty"`

	// ConcurrencyLimit overrides the global limit when positive.
	ConcurrencyLimit int `yaml:"concurrencyLimit,omitempty"`

	// RevisitInterval overrides the global interval when set.
	// "0s" means never revisit.
	RevisitInterval *time.Duration `yaml:"revisitInterval,omitempty"`
}

// File represents the structure of the .medcrawl configuration file.
type File struct {
	// Sites maps hosts to their site-specific configurations.
	// Keys are the host without the scheme (e.g., "www.example-hospital.org").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific host.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = copyHeaders(cf.Defaults.Headers)
	result.ExcludePatterns = append([]string(nil), cf.Defaults.ExcludePatterns...)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	result.ExcludePatterns = append(result.ExcludePatterns, siteConfig.ExcludePatterns...)
	if siteConfig.ConcurrencyLimit > 0 {
		result.ConcurrencyLimit = siteConfig.ConcurrencyLimit
	}
	if siteConfig.RevisitInterval != nil {
		result.RevisitInterval = siteConfig.RevisitInterval
	}

	return result
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
