// Package config provides configuration structures and utilities for medcrawl.
// It defines the crawl engine settings, ledger and hand-off backends, and
// report preferences, and loads them from defaults, the environment, the
// .medcrawl YAML file and CLI flags.
package config
