package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves secrets straight from OS environment variables.
// It backs local runs where values come from the shell or a .env file and
// no SSM round trip is wanted.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Keys absent from
// the environment are omitted from the result rather than erroring; the
// loader decides which are required.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
