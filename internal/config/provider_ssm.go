package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmMaxBatchSize is the AWS service limit on names per GetParameters call.
const ssmMaxBatchSize = 10

// ssmClient is the slice of the SSM SDK the provider needs; tests inject a
// mock through it.
type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider resolves the secrets the loader collected from *_SSM_PARAM
// pointer variables. In dev and prod every sensitive value (Telegram bot
// token, order backend key, database URL, management key hash) lives as a
// SecureString under /{env}/stockwatch/ and is decrypted here at startup.
//
// The watchdog's secret count fits in a single GetParameters call today,
// but resolution still chunks at the API limit and checks the context
// between chunks so a hung call cannot stall startup past the loader's
// deadline.
type SSMProvider struct {
	// Parameters are read from the daemon's own region.
	region string

	// Built lazily on first use unless a test injected one.
	client ssmClient
}

// NewSSMProvider returns a provider for the given AWS region.
func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{region: region}
}

// newSSMProviderWithClient is the test constructor.
func newSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{region: region, client: client}
}

func (p *SSMProvider) ensureClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("loading AWS config for SSM (region=%s): %w", p.region, err)
	}
	p.client = ssm.NewFromConfig(cfg)
	return nil
}

// GetParametersBatch fetches and decrypts the parameters at the given SSM
// paths, returning path -> plaintext. A path SSM reports as invalid fails
// the whole resolution: a missing secret means a misconfigured environment,
// and the daemon must not boot with a partial config.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return make(map[string]string), nil
	}
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(keys))
	for start := 0; start < len(keys); start += ssmMaxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during SSM parameter retrieval: %w", err)
		}

		end := min(start+ssmMaxBatchSize, len(keys))
		if err := p.fetchChunk(ctx, keys[start:end], values); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func (p *SSMProvider) fetchChunk(ctx context.Context, paths []string, values map[string]string) error {
	output, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          paths,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("SSM GetParameters failed for %d parameter(s): %w", len(paths), err)
	}
	if len(output.InvalidParameters) > 0 {
		return fmt.Errorf("SSM parameters not found: %v", output.InvalidParameters)
	}
	for _, param := range output.Parameters {
		if param.Name != nil && param.Value != nil {
			values[*param.Name] = *param.Value
		}
	}
	return nil
}
