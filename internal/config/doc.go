// Package config defines the settings shared by the notifier binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Secrets can be kept out of the YAML file: Load reads an optional .env file
// and lets HA_TOKEN, MQTT_PASSWORD and NATS_TOKEN override the file values.
package config
