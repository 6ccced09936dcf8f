package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Joylan9/agentclient"
)

type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
	timeout    time.Duration
}

// NewRoot builds the agentclient command tree.
func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "agentclient",
		Short:         "Talk to the agent-execution backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Injected runtime config (YAML or JSON)")
	root.PersistentFlags().StringArrayVar(&opts.envFiles, "env-file", nil, "Dotenv file, may be repeated")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "Per-request timeout")

	root.AddCommand(
		healthCmd(opts),
		readyCmd(opts),
		runCmd(opts),
		traceCmd(opts),
		agentsCmd(opts),
		runsCmd(opts),
		statusCmd(opts),
		flagsCmd(opts),
		versionCmd(),
	)
	return root
}

func newLogger(level string) *zap.Logger {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = zapcore.WarnLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stderr), l)
	return zap.New(core)
}

// withClient builds a client from the persistent flags, runs fn and
// renders its result or error.
func withClient(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, c *agentclient.Client) (any, error)) error {
	zl := newLogger(opts.logLevel)
	defer func() { _ = zl.Sync() }()
	logger := agentclient.NewZapLogger(zl.With(zap.String("client", agentclient.UserAgent())))

	cfg, err := agentclient.LoadConfig(opts.configPath, opts.envFiles...)
	if err != nil {
		logger.Warn("Injected config not loaded, using environment and defaults", "path", opts.configPath, "error", err.Error())
	}

	client := agentclient.New(
		agentclient.WithConfig(cfg),
		agentclient.WithTimeout(opts.timeout),
		agentclient.WithLogger(logger),
	)
	defer client.Close()
	if !client.IsValid() {
		return report(cmd.ErrOrStderr(), client.ValidationError())
	}

	result, err := fn(cmd.Context(), client)
	if err != nil {
		return report(cmd.ErrOrStderr(), err)
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportedError marks an error already written to stderr.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func report(w io.Writer, err error) error {
	if apiErr, ok := agentclient.AsAPIError(err); ok {
		_ = printJSON(w, apiErr)
	} else {
		fmt.Fprintln(w, err)
	}
	return &reportedError{err: err}
}

// Execute runs root and prints any error the commands did not render
// themselves, such as flag and argument errors.
func Execute(root *cobra.Command) error {
	err := root.Execute()
	var shown *reportedError
	if err != nil && !errors.As(err, &shown) {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}
