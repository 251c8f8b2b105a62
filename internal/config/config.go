package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	APIConfig
	IdentityConfig
}

type mainConfig struct {
	EnvVars
	API
	Identity
}

var _ Config = mainConfig{}

// Load reads an optional .env file and then the process environment. Required
// values are validated eagerly; a missing one is returned as an error and is
// expected to stop the program.
func Load(envFiles ...string) (Config, error) {
	_ = godotenv.Load(envFiles...)
	return FromEnv()
}

// FromEnv parses the process environment without touching .env files.
func FromEnv() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config Load] %w", err)
	}
	if err := c.Identity.validate(); err != nil {
		return nil, fmt.Errorf("[config Load] %w", err)
	}
	return c, nil
}
