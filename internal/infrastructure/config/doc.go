// Package config loads and validates mediafleet configuration.
//
// Configuration is read from a YAML file, with hardcoded defaults applied
// first and environment variable overrides (MEDIAFLEET_*) applied last.
// Secrets (JWT signing key, MQTT credentials, InfluxDB token) should always
// come from the environment in production deployments.
package config
