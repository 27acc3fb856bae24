package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"FXForecaster/internal/artifact"
	"FXForecaster/internal/collector"
	"FXForecaster/internal/confidence"
	"FXForecaster/internal/config"
	"FXForecaster/internal/engine"
	"FXForecaster/internal/forest"
	"FXForecaster/internal/history"
	"FXForecaster/internal/live"
	"FXForecaster/internal/logger"
	"FXForecaster/internal/metrics"
	"FXForecaster/internal/model"
	"FXForecaster/internal/notifier"
	"FXForecaster/internal/recorder"
	"FXForecaster/internal/retrain"
	"FXForecaster/internal/retry"
	"FXForecaster/internal/scheduler"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] <ticker|retrain>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	arg := flag.Arg(0)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	ticker := ""
	if !strings.EqualFold(arg, "retrain") {
		t, ok := collector.ResolveTicker(arg)
		if !ok {
			log.Warn().Str("ticker", arg).Msg("Ticker not currently supported. Try EURUSD")
			return
		}
		ticker = t
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, cfg, log)
	defer a.close()

	if ticker == "" {
		if _, err := a.orchestrator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("retrain failed")
			a.close()
			os.Exit(1)
		}
		return
	}
	if err := a.serve(ctx, ticker); err != nil {
		log.Error().Err(err).Msg("serve")
		a.close()
		os.Exit(1)
	}
}

// app holds the components shared by both modes.
type app struct {
	cfg          *config.Config
	log          zerolog.Logger
	registry     *prometheus.Registry
	metrics      *metrics.Recorder
	recorder     recorder.Recorder
	telegram     *notifier.TelegramNotifier
	fetcher      *collector.HTTPFetcher
	store        *artifact.Store
	holder       *artifact.Holder
	orchestrator *retrain.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) *app {
	a := &app{cfg: cfg, log: log}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)
	if cfg.Metrics.ListenAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr, a.registry, log); err != nil {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	a.recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			a.recorder = sr
		}
	}

	if cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
	}

	policy := retry.Policy{MaxAttempts: cfg.Live.MaxAttempts, Delay: cfg.Live.RetryDelay}
	a.fetcher = collector.NewHTTPFetcher(cfg.Proxy, cfg.Live.HTTPTimeout)
	a.store = artifact.NewStore(cfg.Artifacts.Dir, cfg.Artifacts.Name, cfg.Artifacts.KeepVersions)
	a.holder = artifact.NewHolder(nil)

	feed := history.NewAlphaVantage(a.fetcher, cfg.History.BaseURL, cfg.History.APIKey, policy, log)
	a.orchestrator = retrain.NewOrchestrator(cfg.Symbol, cfg.Dataset.Path, feed, forest.NewTrainer(),
		a.store, a.holder, a.recorder, a.metrics, log)
	return a
}

func (a *app) close() {
	if err := a.recorder.Close(); err != nil {
		a.log.Error().Err(err).Msg("close recorder")
	}
}

// serve runs the live loop for ticker until ctx is cancelled. Startup
// failures are returned so the caller can release the recorder first.
func (a *app) serve(ctx context.Context, ticker string) error {
	log := a.log

	current, err := engine.Load(a.store)
	if err == nil {
		_, err = engine.New(current)
	}
	if err != nil {
		if !errors.Is(err, engine.ErrModelUnavailable) {
			err = fmt.Errorf("%w: %v", engine.ErrModelUnavailable, err)
		}
		return fmt.Errorf("no usable model in %s, run `fxforecast retrain` first: %w", a.cfg.Artifacts.Dir, err)
	}
	a.holder.Swap(current)
	log.Info().Stringer("artifact", current).Msg("model loaded")

	session, err := confidence.NewSession(a.cfg.Session.Timezone, a.cfg.Session.CloseTime)
	if err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	policy := retry.Policy{MaxAttempts: a.cfg.Live.MaxAttempts, Delay: a.cfg.Live.RetryDelay}
	col := collector.NewCollector(collector.NewYahooQuoteSource(a.fetcher, a.cfg.Quote.BaseURL), ticker, policy, log)

	emitters := notifier.Multi{notifier.NewConsoleEmitter(os.Stdout, log)}
	var sender scheduler.Sender
	if a.telegram != nil {
		emitters = append(emitters, a.telegram)
		sender = a.telegram
	}
	ctrl := live.NewController(col, a.holder, a.store, session, emitters, a.metrics, a.cfg.Live.PollInterval, log)

	sched := scheduler.NewScheduler(ctx, a.orchestrator, sender, a.recorder, session.Location, log)
	sched.Status = func() string { return status(a.holder.Current(), ctrl.Last()) }
	if a.cfg.Schedule.RetrainCron != "" {
		if err := sched.Register(a.cfg.Schedule.RetrainCron); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}
	if a.telegram != nil {
		go a.telegram.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	log.Info().Str("ticker", ticker).Msg("FXForecaster is running. Press Ctrl+C to stop.")
	if err := ctrl.Run(ctx); err != nil {
		log.Error().Err(err).Msg("live loop")
	}
	log.Info().Msg("FXForecaster stopped")
	return nil
}

func status(a *artifact.Artifact, last *model.PredictionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s\n\n", a)
	if last != nil {
		b.WriteString(notifier.FormatPredictionHTML(*last))
	} else {
		b.WriteString("No prediction yet.")
	}
	return b.String()
}
