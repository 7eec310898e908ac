// Package main implements the bootstrap CLI for stockwatch deployments.
//
// The tool walks a human operator through first-time setup: collecting the
// external secrets (Telegram bot token, order backend key, database URL),
// generating the management API key, and writing everything to AWS SSM
// Parameter Store where the daemon's config loader resolves it from.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=dev --export-env
//	go run ./cmd/ops/bootstrap --env=prod --profile=stockwatch-prod --region=eu-west-1
//
// The tool performs the following:
//  1. Parses --env, --profile, --region, --export-env, and --export-env-path.
//  2. Initializes the AWS SDK v2 session with the given profile/region.
//  3. Calls STS GetCallerIdentity to verify the active AWS identity.
//  4. If --env=prod, requires explicit interactive confirmation ("yes").
//  5. Prompts for the external secrets and writes them to SSM.
//  6. Generates the management API key, prints it ONCE, and stores only
//     its bcrypt hash.
//  7. If --export-env is set, writes a .env file of *_SSM_PARAM pointer
//     variables for the daemon to resolve at startup.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Supported environments for the bootstrap tool.
var validEnvironments = map[string]bool{
	"dev":  true,
	"prod": true,
}

// identityTimeout bounds the STS identity check.
const identityTimeout = 15 * time.Second

// BootstrapContext holds the session-wide state established during
// initialization and threaded through the bootstrap phases.
type BootstrapContext struct {
	Environment string
	AWSProfile  string
	AWSRegion   string
	AWSConfig   aws.Config
	AccountID   string
	Logger      *slog.Logger
}

// secretSpec describes one parameter the bootstrap collects or generates.
type secretSpec struct {
	// Path is the category/key portion of the SSM path.
	Path string

	// EnvVar is the daemon environment variable the parameter feeds.
	EnvVar string

	Prompt   string
	Optional bool

	// Secure selects SecureString storage and a pointer-style export.
	Secure bool
}

// secretInventory lists the operator-supplied parameters in prompt order.
var secretInventory = []secretSpec{
	{
		Path:   "telegram/bot_token",
		EnvVar: "STOCKWATCH_TELEGRAM_BOT_TOKEN",
		Prompt: "Telegram bot token (from @BotFather)",
		Secure: true,
	},
	{
		Path:   "telegram/chat_id",
		EnvVar: "STOCKWATCH_TELEGRAM_CHAT_ID",
		Prompt: "Telegram chat ID for notifications",
	},
	{
		Path:     "order/api_key",
		EnvVar:   "STOCKWATCH_ORDER_API_KEY",
		Prompt:   "Order backend API key (blank to skip auto-ordering)",
		Optional: true,
		Secure:   true,
	},
	{
		Path:     "database/url",
		EnvVar:   "STOCKWATCH_DATABASE_URL",
		Prompt:   "PostgreSQL URL (blank to run in-memory)",
		Optional: true,
		Secure:   true,
	},
}

// managementKeySpec is where the generated management API key hash lands.
var managementKeySpec = secretSpec{
	Path:   "server/management_api_key_hash",
	EnvVar: "STOCKWATCH_MANAGEMENT_API_KEY_HASH",
	Secure: true,
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	env := flag.String("env", "", "target environment (dev|prod)")
	profile := flag.String("profile", "", "AWS CLI profile (optional)")
	region := flag.String("region", "", "AWS region (optional, defaults to profile region)")
	exportEnv := flag.Bool("export-env", false, "write a .env of SSM pointer variables after bootstrap")
	exportEnvPath := flag.String("export-env-path", ".env", "path for the exported .env file")
	flag.Parse()

	if !validEnvironments[*env] {
		fmt.Fprintf(os.Stderr, "invalid --env %q: must be dev or prod\n", *env)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bctx, err := initSession(ctx, *env, *profile, *region, logger)
	if err != nil {
		logger.Error("session initialization failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== stockwatch bootstrap ===\n")
	fmt.Printf("Environment: %s\n", bctx.Environment)
	fmt.Printf("AWS account: %s\n", bctx.AccountID)
	fmt.Printf("Region:      %s\n\n", bctx.AWSConfig.Region)

	if bctx.Environment == "prod" {
		if !confirmProd(os.Stdin, os.Stdout) {
			fmt.Println("aborted")
			os.Exit(1)
		}
	}

	mgr := NewSSMManager(bctx)
	if err := runBootstrap(ctx, mgr, os.Stdin, os.Stdout); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	if *exportEnv {
		if err := exportEnvFile(bctx, mgr, *exportEnvPath); err != nil {
			logger.Error("env export failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *exportEnvPath)
	}

	fmt.Println("\nbootstrap complete")
}

// initSession loads the AWS configuration and verifies the active identity
// via STS before anything is written.
func initSession(ctx context.Context, env, profile, region string, logger *slog.Logger) (*BootstrapContext, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	idCtx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()
	identity, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(idCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity: %w", err)
	}

	return &BootstrapContext{
		Environment: env,
		AWSProfile:  profile,
		AWSRegion:   awsCfg.Region,
		AWSConfig:   awsCfg,
		AccountID:   aws.ToString(identity.Account),
		Logger:      logger,
	}, nil
}

// confirmProd requires the operator to type "yes" before touching the prod
// parameter tree.
func confirmProd(in *os.File, out *os.File) bool {
	fmt.Fprint(out, "You are bootstrapping PRODUCTION. Type 'yes' to continue: ")
	reader := bufio.NewReader(in)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

// runBootstrap walks the secret inventory, prompting for each value and
// writing it to SSM, then generates and stores the management API key hash.
func runBootstrap(ctx context.Context, mgr *SSMManager, in *os.File, out *os.File) error {
	reader := bufio.NewReader(in)

	for _, spec := range secretInventory {
		path := mgr.SSMPath(spec.Path)

		exists, err := mgr.ParameterExists(ctx, path)
		if err != nil {
			return err
		}
		if exists {
			fmt.Fprintf(out, "  %s already set, keeping existing value\n", path)
			continue
		}

		fmt.Fprintf(out, "%s: ", spec.Prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input for %s: %w", spec.Path, err)
		}
		value := strings.TrimSpace(line)
		if value == "" {
			if spec.Optional {
				fmt.Fprintf(out, "  skipped\n")
				continue
			}
			return fmt.Errorf("%s is required", spec.Path)
		}

		if err := mgr.PutParameterValue(ctx, path, value, spec.Secure); err != nil {
			return err
		}
	}

	// Management API key: generated, shown once, stored only as a hash.
	hashPath := mgr.SSMPath(managementKeySpec.Path)
	exists, err := mgr.ParameterExists(ctx, hashPath)
	if err != nil {
		return err
	}
	if exists {
		fmt.Fprintf(out, "  %s already set, keeping existing key\n", hashPath)
		return nil
	}

	key, hash, err := GenerateManagementKey()
	if err != nil {
		return err
	}
	if err := mgr.PutParameterValue(ctx, hashPath, hash, true); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nManagement API key (record it now, it is NOT stored):\n\n    %s\n\n", key)
	return nil
}

// exportEnvFile writes a .env for the daemon: pointer variables for
// SecureString parameters (resolved by the config loader at startup) and
// plain values for the rest.
func exportEnvFile(bctx *BootstrapContext, mgr *SSMManager, path string) error {
	specs := append(append([]secretSpec(nil), secretInventory...), managementKeySpec)

	var b strings.Builder
	fmt.Fprintf(&b, "# Generated by cmd/ops/bootstrap for %s\n", bctx.Environment)
	fmt.Fprintf(&b, "STOCKWATCH_ENV=%s\n", bctx.Environment)
	fmt.Fprintf(&b, "AWS_REGION=%s\n", bctx.AWSRegion)
	for _, line := range renderEnvEntries(mgr, specs) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// renderEnvEntries produces one *_SSM_PARAM pointer line per spec so no
// plaintext value lands on disk. The daemon's config loader resolves the
// pointers at startup.
func renderEnvEntries(mgr *SSMManager, specs []secretSpec) []string {
	lines := make([]string, 0, len(specs))
	for _, spec := range specs {
		lines = append(lines, fmt.Sprintf("%s%s=%s", spec.EnvVar, ssmPointerSuffix, mgr.SSMPath(spec.Path)))
	}
	return lines
}
