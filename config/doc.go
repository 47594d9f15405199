// Package config loads the YAML configuration file.
//
// Every field has a default, so an absent file or a partial file is valid.
// Environment overrides are applied by the command line layer.
package config
