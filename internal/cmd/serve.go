/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/acronis/go-throttlekit/httpserver"
	"github.com/acronis/go-throttlekit/internal/api"
	"github.com/acronis/go-throttlekit/internal/libinfo"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/lrucache"
	"github.com/acronis/go-throttlekit/profserver"
	"github.com/acronis/go-throttlekit/restapi"
	"github.com/acronis/go-throttlekit/service"
	"github.com/acronis/go-throttlekit/throttling"
)

const metricsNamespace = "throttled"

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the throttling daemon",
		Long: `Run the HTTP server with the throttling API (/api/throttling/v1) and, if reloading is configured,
the reloader that re-reads the throttling section and the rules file. The daemon stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := loadAppConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			logger, closeLogger := log.NewLogger(appCfg.Log)
			defer closeLogger()
			return runServe(cmd.Context(), appCfg, logger, nil)
		},
	}
}

// runServe builds the daemon and runs it until ctx is done or a shutdown signal is received.
// A nil listener means the server listens on the configured address.
func runServe(ctx context.Context, appCfg *AppConfig, logger log.FieldLogger, listener net.Listener) error {
	throttlingCfg, err := throttling.LoadConfiguration(appCfg.Throttling)
	if err != nil {
		return err
	}

	constLabels := libinfo.AddPrometheusVersionLabel(nil)
	cacheMetrics := lrucache.NewPrometheusMetrics(lrucache.PrometheusMetricsOpts{
		Namespace: metricsNamespace + "_counter", ConstLabels: constLabels})
	counter, err := throttling.NewCounter(appCfg.Throttling.Counter.Alg, throttling.CounterOpts{
		MaxScopes:    appCfg.Throttling.Counter.MaxScopes,
		CacheMetrics: cacheMetrics,
	})
	if err != nil {
		return fmt.Errorf("create throttling counter: %w", err)
	}
	throttlingMetrics := throttling.NewPrometheusMetrics(throttling.PrometheusMetricsOpts{
		Namespace: metricsNamespace, ConstLabels: constLabels})
	processor := throttling.NewProcessor(throttlingCfg, counter, logger, throttling.WithMetricsCollector(throttlingMetrics))

	apiHandler := api.NewHandler(processor, api.HandlerOpts{DryRun: appCfg.Throttling.DryRun})
	srv := httpserver.New(appCfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: api.ServiceNameInURL,
		ErrorDomain:      api.ErrDomain,
		APIRoutes:        map[httpserver.APIVersion]httpserver.APIRoute{api.Version: apiHandler.Routes},
		HealthCheck:      healthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{
			Namespace: metricsNamespace, ConstLabels: constLabels},
		Listener: listener,
	})

	units := []service.Unit{srv}
	if appCfg.ProfServer.Enabled {
		units = append(units, profserver.New(appCfg.ProfServer, logger))
	}
	if reloadInterval := time.Duration(appCfg.Throttling.Reload.Interval); reloadInterval > 0 {
		reloaderLogger := log.NewPrefixedLogger(logger.With(log.String("worker", "throttling_rules_reloader")), "[rules reloader] ")
		reloader := throttling.NewReloader(appCfg.Throttling, processor, reloaderLogger,
			throttling.WithConfigLoader(appCfg.ThrottlingConfigLoader()))
		units = append(units, service.NewWorkerUnit(service.NewPeriodicWorkerWithOpts(
			reloader, reloadInterval, reloaderLogger, service.PeriodicWorkerOpts{InitialDelay: reloadInterval})))
	}

	throttlingMetrics.MustRegister()
	defer throttlingMetrics.Unregister()
	cacheMetrics.MustRegister()
	defer cacheMetrics.Unregister()
	restapi.MustInitAndRegisterMetrics(metricsNamespace)
	defer restapi.UnregisterMetrics()

	logger.Info("throttling daemon is starting",
		log.String("version", libinfo.GetVersion()),
		log.Bool("throttling_disabled", throttlingCfg.Disabled()),
		log.Int("throttling_rules", len(throttlingCfg.Rules())),
		log.String("counter_alg", string(appCfg.Throttling.Counter.Alg)),
	)
	return service.New(logger, service.NewCompositeUnit(units...)).Start(ctx)
}

// healthCheck reports the processor as healthy once the daemon serves requests:
// the configuration is validated at startup and a failed reload keeps the previous one.
func healthCheck(ctx context.Context) (httpserver.HealthCheckResult, error) {
	return httpserver.HealthCheckResult{"throttling": httpserver.HealthCheckStatusOK}, ctx.Err()
}
