// Package config provides configuration types for the ioprocess client.
package config
