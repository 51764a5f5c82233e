package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"govqa/internal/components/chrono"
	"govqa/internal/components/telemetry"
	"govqa/internal/govqa"
	"govqa/pkg/configutil"

	"github.com/spf13/cobra"
)

// Config is the shape of config.json5, every value can also be set from
// the environment.
type Config struct {
	Domain            string  `json:"domain" env:"GOVQA_DOMAIN"`
	Username          string  `json:"username" env:"GOVQA_USERNAME"`
	Password          string  `json:"password" env:"GOVQA_PASSWORD"`
	RetryAttempts     int     `json:"retry_attempts" env:"GOVQA_RETRY_ATTEMPTS"`
	TimeoutSeconds    int     `json:"timeout_seconds" env:"GOVQA_TIMEOUT_SECONDS"`
	RequestsPerSecond float64 `json:"requests_per_second" env:"GOVQA_REQUESTS_PER_SECOND"`
	BypassCloudflare  bool    `json:"bypass_cloudflare" env:"GOVQA_BYPASS_CLOUDFLARE"`
	// Timezone is the IANA zone the portal renders dates in.
	Timezone string `json:"timezone" env:"GOVQA_TIMEZONE"`
	// DumpDir receives every page fetched, for debugging.
	DumpDir string `json:"dump_dir" env:"GOVQA_DUMP_DIR"`
}

var (
	configPath string
	verbose    bool
	config     Config
)

var rootCmd = &cobra.Command{
	Use:          "govqa-cli",
	Short:        "govqa-cli files and follows public records requests on a GovQA portal.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		var err error
		config, err = configutil.ReadConfigEnv[Config](configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if config.Domain == "" {
			return fmt.Errorf("no portal domain, set it in %s or GOVQA_DOMAIN", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
}

// ExecuteContext runs the cli, it reports whether the command succeeded.
func ExecuteContext(ctx context.Context) bool {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	return true
}

func openClient(ctx context.Context) (*govqa.Client, error) {
	clock, err := chrono.NewStandardImpl(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return govqa.Open(ctx, govqa.Options{
		BaseAddress:       config.Domain,
		RetryAttempts:     config.RetryAttempts,
		Timeout:           time.Duration(config.TimeoutSeconds) * time.Second,
		RequestsPerSecond: config.RequestsPerSecond,
		BypassCloudflare:  config.BypassCloudflare,
		DumpDir:           config.DumpDir,
	}, telemetry.SlogAPI{}, clock)
}

// openLoggedIn opens a client and logs in with the configured credentials.
func openLoggedIn(ctx context.Context) (*govqa.Client, error) {
	if config.Username == "" || config.Password == "" {
		return nil, fmt.Errorf("no credentials, set username and password in %s or GOVQA_USERNAME and GOVQA_PASSWORD", configPath)
	}
	client, err := openClient(ctx)
	if err != nil {
		return nil, err
	}
	err = client.Login(ctx, config.Username, config.Password)
	if err != nil {
		return nil, err
	}
	return client, nil
}
