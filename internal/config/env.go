package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "IOPROCESS"

// Env holds launch settings read from the environment.
//
// Keys are always prefixed: an explicit envconfig tag would make the bare
// name (PATH, TRACE) an accepted fallback.
type Env struct {
	Path           string
	TasksetPath    string `split_words:"true"`
	Trace          bool   `default:"false"`
	DebugTerminate bool   `split_words:"true" default:"false"`
}

// LoadEnv reads IOPROCESS_* variables.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	return &env, nil
}

// ApplyEnv fills launch fields left unset by explicit options.
func (o *Options) ApplyEnv(env *Env) {
	if env == nil {
		return
	}

	if o.ExecutablePath == "" {
		o.ExecutablePath = env.Path
	}

	if !o.explicitTaskset && o.TasksetPath == "" && env.TasksetPath != "" {
		o.TasksetPath = env.TasksetPath
	}

	o.Trace = o.Trace || env.Trace
	o.DebugTerminate = o.DebugTerminate || env.DebugTerminate
}
