package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lockguard/lockguard/pkg/color"
	"github.com/lockguard/lockguard/pkg/countdown"
	"github.com/lockguard/lockguard/pkg/lockguard"
	"github.com/lockguard/lockguard/pkg/model"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		metricsAddr string
		quiet       bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the engine schedulers and print lock events",
		Long: `Run the engine in the foreground: trust windows close on time, timer
budgets count down and are flushed every flush_interval, and every state
change is printed. Ctrl+C flushes timer progress and exits.

watch holds the workspace while it runs; other lockguard commands on the
same workspace fail until it exits.

With --metrics-addr the Prometheus registry is served on /metrics
(metrics.enabled must be true in the config).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			client, err := a.open(cmd)
			if err != nil {
				return err
			}

			var srv *http.Server
			if metricsAddr != "" {
				srv, err = serveMetrics(client, metricsAddr)
				if err != nil {
					_ = client.Close(context.Background())
					return err
				}
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			unsubscribe := client.Subscribe(func(ev model.Event) {
				if quiet && ev.Type == model.EventCountdownTick {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintln(out, formatEvent(time.Now(), ev))
			})

			fmt.Fprintf(out, "Watching %d lock(s) in %s. Press Ctrl+C to stop.\n", len(client.Locks()), client.Root())
			<-ctx.Done()
			unsubscribe()

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = srv.Shutdown(shutdownCtx)
				cancel()
			}
			if err := client.Close(context.Background()); err != nil {
				return fmt.Errorf("flush on exit: %w", err)
			}
			fmt.Fprintln(out, "Timer progress flushed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :2112)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print countdown ticks")
	return cmd
}

func serveMetrics(client *lockguard.Client, addr string) (*http.Server, error) {
	g := client.Metrics().Gatherer()
	if g == nil {
		return nil, errors.New("metrics are disabled in the config")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmtErr("metrics server: %v", err)
		}
	}()
	return srv, nil
}

func formatEvent(now time.Time, ev model.Event) string {
	line := fmt.Sprintf("%s  %-16s %s", color.Dim(now.Format("15:04:05")), ev.Type, ev.Key)
	switch ev.Type {
	case model.EventCountdownTick, model.EventTimerTick:
		line += "  " + color.Warning(countdown.Format(ev.Remaining))
	case model.EventTrustExpired, model.EventTimerExpired:
		line += "  " + color.Error("expired")
	}
	return line
}
