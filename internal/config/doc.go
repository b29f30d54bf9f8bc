// Package config provides configuration structures and utilities for owlpair.
// It defines the options for the dialogue run, the crawl/extract pipeline,
// the model endpoint and report generation, plus the optional YAML file
// carrying per-host crawl overrides.
package config
