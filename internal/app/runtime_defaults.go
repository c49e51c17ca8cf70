package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/trackgate/pkg/crypto"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults fills secrets the operator allowed to be generated at startup.
// It returns a map describing which keys were generated so callers can log the event
// without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" && cfg.Auth.JWT.AllowEphemeralSecret {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if cfg.APIKeys.DefaultRateLimit <= 0 {
		cfg.APIKeys.DefaultRateLimit = 100
	}

	return generated, nil
}
