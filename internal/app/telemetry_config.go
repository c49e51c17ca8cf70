package app

import (
	"strings"

	"github.com/charlesng35/trackgate/internal/telemetry"
)

// ClientConfig converts TelemetryConfig into the telemetry client parameters.
func (c TelemetryConfig) ClientConfig() telemetry.ClientConfig {
	return telemetry.ClientConfig{
		AuthURL:           strings.TrimSpace(c.AuthURL),
		PositionsURL:      strings.TrimSpace(c.PositionsURL),
		Username:          strings.TrimSpace(c.Username),
		Password:          c.Password,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}
