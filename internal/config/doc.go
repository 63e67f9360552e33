// Package config loads, defaults and validates application settings from an
// optional config file, an optional .env file and SCRY_-prefixed environment
// variables.
package config
