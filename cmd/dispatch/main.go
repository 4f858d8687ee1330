// Command dispatch is the CLI entry point for the provider dispatcher: it
// loads a YAML configuration, wires a conductor over it, and exposes
// send/status/reset subcommands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/TakumaLee/dispatch/internal/config"
	"github.com/TakumaLee/dispatch/internal/conductor"
	"github.com/TakumaLee/dispatch/internal/dispatchlog"
	"github.com/TakumaLee/dispatch/internal/manager"
	"github.com/TakumaLee/dispatch/internal/metrics/promexport"
	"github.com/TakumaLee/dispatch/internal/otelsetup"
	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/tokens"
)

func main() {
	shutdown := otelsetup.Install("dispatch")
	defer shutdown(context.Background())

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dispatch",
		Short:         "Resilient CLI-agent dispatcher: select, retry, and fall back across coding-agent providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "dispatch.yaml", "path to the YAML config file")
	root.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	root.AddCommand(sendCmd(), statusCmd(), resetCmd())
	return root
}

func loadConductor(cmd *cobra.Command) (*conductor.Conductor, *tokens.Tracker, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadYAML(path)
	if err != nil {
		return nil, nil, err
	}
	tracker := tokens.New()
	tracker.Attach(cfg.Callbacks)

	mgr := manager.New(cfg, subprocess.New())
	c := conductor.New(cfg, mgr)

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		serveMetrics(addr, c)
	}
	return c, tracker, nil
}

// serveMetrics starts a background HTTP server exposing c's metrics sink as
// a Prometheus /metrics endpoint. Errors are logged, not fatal: metrics
// export is observational and must never block dispatch itself.
func serveMetrics(addr string, c *conductor.Conductor) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(promexport.New(c.Metrics()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			dispatchlog.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <prompt>",
		Short: "Dispatch a prompt through the configured providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, tracker, err := loadConductor(cmd)
			if err != nil {
				return err
			}
			provider, _ := cmd.Flags().GetString("provider")
			model, _ := cmd.Flags().GetString("model")
			timeoutStr, _ := cmd.Flags().GetString("timeout")
			direct, _ := cmd.Flags().GetBool("direct")

			var opts conductor.Options
			if timeoutStr != "" {
				d, err := time.ParseDuration(timeoutStr)
				if err != nil {
					return fmt.Errorf("invalid --timeout: %w", err)
				}
				opts.Timeout = d
			}

			ctx := context.Background()
			var resp struct {
				Output   string
				Provider string
				Model    string
			}
			if direct {
				if provider == "" {
					return fmt.Errorf("--direct requires --provider")
				}
				r, err := c.ExecuteDirect(ctx, args[0], provider, model, opts)
				if err != nil {
					return err
				}
				resp.Output, resp.Provider, resp.Model = r.Output, r.Provider, r.Model
			} else {
				r, err := c.Send(ctx, args[0], provider, model, opts)
				if err != nil {
					return err
				}
				resp.Output, resp.Provider, resp.Model = r.Output, r.Provider, r.Model
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s/%s]\n%s\n", resp.Provider, resp.Model, resp.Output)
			if grand := tracker.Grand(); grand.Calls > 0 {
				dispatchlog.Info("token usage", "calls", grand.Calls, "total_tokens", grand.Total)
			}
			return nil
		},
	}
	cmd.Flags().String("provider", "", "preferred provider (falls back to the configured default)")
	cmd.Flags().String("model", "", "model override")
	cmd.Flags().String("timeout", "", "per-call timeout, e.g. 30s")
	cmd.Flags().Bool("direct", false, "bypass orchestration and call --provider directly")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current provider, health, and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := loadConductor(cmd)
			if err != nil {
				return err
			}
			status := c.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "current provider: %s\n", status.CurrentProvider)
			fmt.Fprintf(cmd.OutOrStdout(), "available: %v\n", status.AvailableProviders)
			for _, h := range status.Health {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-16s circuit=%-10s healthy=%-5t rate_limited=%t\n",
					h.Provider, h.CircuitState, h.Healthy, h.RateLimited)
			}
			m := status.Metrics
			fmt.Fprintf(cmd.OutOrStdout(), "attempts=%d successes=%d failures=%d switches=%d\n",
				m.TotalAttempts, m.TotalSuccesses, m.TotalFailures, m.TotalSwitches)
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset every circuit breaker, rate limiter, health window, and metrics counter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := loadConductor(cmd)
			if err != nil {
				return err
			}
			c.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "reset complete")
			return nil
		},
	}
}
