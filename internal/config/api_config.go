package config

import (
	"strings"
	"time"
)

type APIConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetReadRetries() int
}

type API struct {
	BaseURL        string        `env:"API_URL,notEmpty"`
	RequestTimeout time.Duration `env:"HTTP_TIMEOUT"      envDefault:"15s"`
	ReadRetries    int           `env:"HTTP_READ_RETRIES" envDefault:"1"`
}

var _ APIConfig = API{}

// GetAPIBaseURL returns the REST API root without a trailing slash
// (e.g. "https://api.flavory.app/api").
func (a API) GetAPIBaseURL() string {
	return strings.TrimRight(a.BaseURL, "/")
}

func (a API) GetRequestTimeout() time.Duration {
	if a.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return a.RequestTimeout
}

func (a API) GetReadRetries() int {
	if a.ReadRetries < 0 {
		return 0
	}
	return a.ReadRetries
}
