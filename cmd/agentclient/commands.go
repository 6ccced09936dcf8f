package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Joylan9/agentclient"
)

func healthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *agentclient.Client) (any, error) {
				return c.Health(ctx)
			})
		},
	}
}

func readyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check backend readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *agentclient.Client) (any, error) {
				return c.Ready(ctx)
			})
		},
	}
}

func runCmd(opts *rootOptions) *cobra.Command {
	var goal, session string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent on a goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *agentclient.Client) (any, error) {
				return c.RunAgent(ctx, agentclient.AgentRequest{SessionID: session, Goal: goal})
			})
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "Goal for the agent")
	cmd.Flags().StringVar(&session, "session", "", "Session ID")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func traceCmd(opts *rootOptions) *cobra.Command {
	var (
		wait     bool
		interval time.Duration
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "trace <request-id>",
		Short: "Show the trace of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withClient(cmd, opts, func(ctx context.Context, c *agentclient.Client) (any, error) {
				if wait {
					return c.PollTrace(ctx, id, interval, attempts)
				}
				return c.GetTrace(ctx, id)
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the trace completes or fails")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval with --wait")
	cmd.Flags().IntVar(&attempts, "attempts", 30, "Maximum polls with --wait")
	return cmd
}

func agentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *agentclient.Client) (any, error) {
				return c.ListAgents(ctx)
			})
		},
	}
}

func runsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *agentclient.Client) (any, error) {
				return c.ListRuns(ctx)
			})
		},
	}
}

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize API, LLM and readiness status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *agentclient.Client) (any, error) {
				return c.SystemStatus(ctx), nil
			})
		},
	}
}

func flagsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "Show feature flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *agentclient.Client) (any, error) {
				return c.FeatureFlags(ctx)
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), agentclient.GetVersion())
			return nil
		},
	}
}
