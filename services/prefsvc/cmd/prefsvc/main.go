package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/spf13/cobra"
	"github.com/xinkaiwang/swmr/libs/swmr/storeprov"
	"github.com/xinkaiwang/swmr/libs/swmr/swmrconfig"
	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
	"github.com/xinkaiwang/swmr/libs/xklib/ksysmetrics"
	"github.com/xinkaiwang/swmr/services/prefsvc/internal/biz"
	"github.com/xinkaiwang/swmr/services/prefsvc/internal/common"
	"github.com/xinkaiwang/swmr/services/prefsvc/internal/handler"
	"go.opencensus.io/metric"
	"go.opencensus.io/metric/metricproducer"
)

// injected with -ldflags
var Version string = "dev"
var GitCommit string = "unknown"
var BuildTime string = "unknown"

var (
	configFile  string
	apiPort     int
	metricsPort int
	sessionKey  string
)

var rootCmd = &cobra.Command{
	Use:   "prefsvc",
	Short: "prefsvc serves per-user preferences through single-writer multi-reader grains.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("version=%s commit=%s buildTime=%s\n", Version, GitCommit, BuildTime)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "f", kcommon.GetEnvString("PREFSVC_CONFIG", ""), "configuration file (.json or .yaml); defaults apply when empty")
	flags.IntVar(&apiPort, "api-port", kcommon.GetEnvInt("API_PORT", 8080), "port of the REST api")
	flags.IntVar(&metricsPort, "metrics-port", kcommon.GetEnvInt("METRICS_PORT", 9090), "port of the prometheus /metrics endpoint")
	flags.StringVar(&sessionKey, "session-key", kcommon.GetEnvString("SESSION_KEY", ""), "cookie signing key; random per process when empty")
	rootCmd.AddCommand(versionCmd)
}

/*
export LOG_LEVEL=info
export LOG_FORMAT=json
export API_PORT=8080
export METRICS_PORT=9090
./bin/prefsvc -f config/prefsvc.yaml
*/
func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setupLogging(ctx context.Context) {
	logLevel := kcommon.GetEnvString("LOG_LEVEL", "info")
	logFormat := kcommon.GetEnvString("LOG_FORMAT", "json")
	logrusLogger := klogging.NewLogrusLogger(ctx).WithMetricsReporter(common.LogMetricsReporter{})
	logrusLogger.SetConfig(ctx, logLevel, logFormat)
	klogging.SetDefaultLogger(logrusLogger)
	klogging.Info(ctx).With("logLevel", logLevel).With("logFormat", logFormat).Log("LogLevelSet", "")
}

func loadConfig() (*swmrconfig.Config, error) {
	var cfg *swmrconfig.Config
	var err error
	if configFile != "" {
		cfg, err = swmrconfig.LoadFromFile(configFile)
	} else {
		cfg, err = swmrconfig.ParseConfigJson(nil)
	}
	if err != nil {
		return nil, err
	}
	if _, ok := cfg.Kinds[biz.KindName]; !ok {
		cfg.Kinds[biz.KindName] = swmrconfig.DefaultKindConfig(biz.KindName)
		cfg.ApplyEnvOverrides()
	}
	return cfg, cfg.Validate()
}

func cookieKey() []byte {
	if sessionKey != "" {
		return []byte(sessionKey)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(kerror.Wrap(err, "SessionKeyError", "failed to generate session key", false))
	}
	return key
}

func run(ctx context.Context) error {
	setupLogging(ctx)
	biz.SetVersion(Version)
	klogging.Info(ctx).With("version", Version).With("commit", GitCommit).With("buildTime", BuildTime).Log("ServerStarting", "Starting prefsvc")

	cfg, err := loadConfig()
	if err != nil {
		klogging.Error(ctx).WithError(err).Log("ConfigError", "invalid configuration")
		return err
	}
	kindCfg := cfg.Kind(biz.KindName)

	store, err := storeprov.NewStateStore(ctx, cfg.Store)
	if err != nil {
		klogging.Error(ctx).WithError(err).With("storeType", cfg.Store.Type).Log("StoreError", "failed to open state store")
		return err
	}
	app, err := biz.NewApp(ctx, kindCfg, store)
	if err != nil {
		klogging.Error(ctx).WithError(err).Log("AppError", "failed to build grain kind")
		return err
	}

	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "prefsvc",
	})
	if err != nil {
		return kerror.Wrap(err, "MetricsExporterError", "failed to create prometheus exporter", false)
	}
	metricproducer.GlobalManager().AddProducer(kmetrics.GetKmetricsRegistry())
	gaugeRegistry := metric.NewRegistry()
	if err := ksysmetrics.Register(gaugeRegistry, Version); err != nil {
		return err
	}
	if err := app.RegisterGauges(gaugeRegistry); err != nil {
		return err
	}
	metricproducer.GlobalManager().AddProducer(gaugeRegistry)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", pe)

	h := handler.NewHandler(app, handler.NewCookieSessionResolver(cookieKey()))
	mainMux := http.NewServeMux()
	h.RegisterRoutes(mainMux)

	mainServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", apiPort),
		Handler: mainMux,
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", metricsPort),
		Handler: metricsMux,
	}
	klogging.Info(ctx).
		With("api_port", apiPort).
		With("metrics_port", metricsPort).
		With("replicaCount", kindCfg.ReplicaCount).
		With("storeType", cfg.Store.Type).
		Log("ServerConfig", "")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		klogging.Info(ctx).Log("ServerShutdown", "Shutting down servers...")
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := mainServer.Shutdown(ctx); err != nil {
			klogging.Error(ctx).WithError(err).Log("MainServerShutdownError", "")
		}
		// flush pending lazy writes before the store goes away
		app.Stop(ctx)
		if err := store.Close(ctx); err != nil {
			klogging.Error(ctx).WithError(err).Log("StoreCloseError", "")
		}
		if err := metricsServer.Shutdown(ctx); err != nil {
			klogging.Error(ctx).WithError(err).Log("MetricsServerShutdownError", "")
		}
	}()

	go func() {
		klogging.Info(ctx).With("addr", metricsServer.Addr).Log("MetricsServerStarting", "")
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			klogging.Error(ctx).WithError(err).Log("MetricsServerError", "")
		}
	}()

	klogging.Info(ctx).With("addr", mainServer.Addr).Log("MainServerStarting", "")
	if err := mainServer.ListenAndServe(); err != http.ErrServerClosed {
		klogging.Error(ctx).WithError(err).Log("MainServerError", "")
		return err
	}
	<-shutdownDone
	klogging.Info(ctx).Log("ServerShutdown", "Servers stopped")
	return nil
}
