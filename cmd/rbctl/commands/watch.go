package commands

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/rbkit/pkg/config"
	"github.com/openfroyo/rbkit/pkg/policy"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var noMetrics bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload definitions and policies as they change",
		Long: `Watch the definition and policy paths of the settings file and apply
changes as they are saved. Reloads and resource changes are printed as they
happen. Prometheus metrics are served on the configured address unless
--no-metrics is given.

Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runWatch(ctx, cmd.OutOrStdout(), a, !noMetrics)
			})
		},
	}

	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "do not serve Prometheus metrics")

	return cmd
}

func runWatch(ctx context.Context, out io.Writer, a *app, serveMetrics bool) error {
	logger := a.tel.Logger.NewComponentLogger("watch")

	var mu sync.Mutex
	a.tel.Events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "%s  %-20s %s\n", e.Timestamp.Format(time.TimeOnly), e.Type, e.Message)
	}, telemetry.FilterByType(
		telemetry.EventTypeResourceDirty,
		telemetry.EventTypeConfigReloaded,
		telemetry.EventTypeConfigReloadFailed,
		telemetry.EventTypeAccessDenied,
	))

	if serveMetrics {
		if srv := a.tel.Metrics.StartMetricsServer(logger); srv != nil {
			logger.WithField("address", srv.Addr).Info("serving metrics")
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
	}

	if err := a.loader.Watch(ctx, a.settings.Definitions, config.ApplyTo(a.builder, a.manager)); err != nil {
		return err
	}
	defer func() { _ = a.loader.StopWatching() }()

	if len(a.settings.Policies) > 0 {
		policies := policy.NewLoader(*logger.Zerolog())
		if err := policies.Watch(ctx, a.settings.Policies, a.policies.ReplacePolicies); err != nil {
			return err
		}
		defer func() { _ = policies.StopWatching() }()
	}

	fmt.Fprintf(out, "Watching %d resources, press Ctrl+C to stop\n", a.manager.Len())
	<-ctx.Done()
	return nil
}
