// Package config loads and saves the YAML configuration file.
//
// The file lives at ~/.config/coherent-events/config.yaml unless a path is
// given. On first run Load writes the defaults there with 0600 permissions.
// Partially filled files are normalized, so older files keep working after
// new fields are added.
package config
