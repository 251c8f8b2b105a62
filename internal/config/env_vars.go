package config

import "strings"

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsDev() bool
}

type EnvVars struct {
	AppName  string `env:"APP_NAME"  envDefault:"Flavory"`
	Env      string `env:"ENV"       envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) IsDev() bool {
	return e.GetEnv() == "DEV"
}
