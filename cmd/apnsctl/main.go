// Command apnsctl sends notifications through the binary gateway and reads
// the feedback service from a terminal.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
)

// globalFlags are shared by every subcommand. Unset flags fall back to the
// APNS_* environment, which may come from a .env file.
type globalFlags struct {
	host         string
	port         int
	feedbackPort int
	pem          string
	pass         string
	envFile      string
	verbose      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "apnsctl",
		Short: "Talk to the APNs binary gateway and feedback service",
		Long: `apnsctl sends push notifications over the legacy binary protocol
and lists the device tokens the feedback service reports as dead.

Connection settings come from flags or the environment:
  APNS_HOST, APNS_PORT, APNS_FEEDBACK_PORT, APNS_PEM, APNS_PASS`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(flags.envFile)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.host, "host", "", "gateway host (env APNS_HOST)")
	pf.IntVar(&flags.port, "port", 0, "gateway port (env APNS_PORT)")
	pf.IntVar(&flags.feedbackPort, "feedback-port", 0, "feedback port (env APNS_FEEDBACK_PORT)")
	pf.StringVar(&flags.pem, "pem", "", "PEM or .p12 certificate file (env APNS_PEM)")
	pf.StringVar(&flags.pass, "pass", "", "certificate passphrase (env APNS_PASS)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "optional dotenv file")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log connection activity")

	rootCmd.AddCommand(
		sendCmd(flags),
		feedbackCmd(flags),
	)
	return rootCmd
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// settings merges flags over the environment.
func (f *globalFlags) settings() (apns.Settings, error) {
	s := apns.Settings{
		Host:         firstNonEmpty(f.host, os.Getenv("APNS_HOST")),
		PemPath:      firstNonEmpty(f.pem, os.Getenv("APNS_PEM")),
		Passphrase:   firstNonEmpty(f.pass, os.Getenv("APNS_PASS")),
		Port:         f.port,
		FeedbackPort: f.feedbackPort,
	}
	var err error
	if s.Port == 0 {
		if s.Port, err = envInt("APNS_PORT"); err != nil {
			return apns.Settings{}, err
		}
	}
	if s.FeedbackPort == 0 {
		if s.FeedbackPort, err = envInt("APNS_FEEDBACK_PORT"); err != nil {
			return apns.Settings{}, err
		}
	}
	return s, nil
}

func (f *globalFlags) logger() *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// gateway resolves the settings and builds a non-persistent gateway.
func (f *globalFlags) gateway() (*apns.Gateway, error) {
	s, err := f.settings()
	if err != nil {
		return nil, err
	}
	cfg, err := apns.ResolveConfig(s)
	if err != nil {
		return nil, err
	}
	return apns.New(cfg, f.logger())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}
