package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/agentworkforce/fleetdesk/internal/config"
	"github.com/agentworkforce/fleetdesk/internal/google"
	"github.com/agentworkforce/fleetdesk/internal/httpapi"
	"github.com/agentworkforce/fleetdesk/internal/intake"
	"github.com/agentworkforce/fleetdesk/internal/storage"
	"github.com/agentworkforce/fleetdesk/internal/telegram"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "fleetdesk: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logOut io.Writer) error {
	flags := pflag.NewFlagSet("fleetdesk", pflag.ContinueOnError)
	flags.SetOutput(logOut)
	envFile := flags.String("env-file", "", "path to a .env file (default ./.env when present)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	svc, err := buildService(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	listener := httpapi.NewListener(httpapi.ListenerConfig{
		Address:         cfg.Addr(),
		Handler:         svc.handler,
		Logger:          logger,
		ShutdownTimeout: cfg.ShutdownTimeout(),
	})
	return listener.Serve(ctx)
}

type service struct {
	handler http.Handler
	engine  *intake.Engine
	objects intake.ObjectStore
	sink    intake.ReportSink
	closers []io.Closer
}

func (s *service) Close() error {
	var errs []error
	for _, closer := range s.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// buildService wires the collaborators selected by cfg behind the webhook
// handler. A nil httpClient lets each client use its own default.
func buildService(cfg *config.Config, logger *slog.Logger, httpClient *http.Client) (*service, error) {
	bot := telegram.NewClient(telegram.ClientOptions{
		BaseURL:    cfg.TelegramAPIBase,
		Token:      cfg.BotToken,
		HTTPClient: httpClient,
	})

	var tokens intake.TokenSource
	if cfg.HasGoogleCredentials() {
		source, err := google.NewServiceAccountTokenSource(google.ServiceAccountOptions{
			ClientEmail: cfg.GoogleClientEmail,
			PrivateKey:  cfg.GooglePrivateKey,
			TokenURL:    cfg.GoogleTokenURL,
			HTTPClient:  httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("google credentials: %w", err)
		}
		tokens = source
	} else {
		logger.Warn("google service account not configured, stores are called without a bearer token")
	}

	storeOpts := storage.Options{HTTPClient: httpClient}
	objects, err := storage.BuildObjectStoreFromDSN(cfg.ObjectStoreDSN, storeOpts)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	sink, err := storage.BuildReportSinkFromDSN(cfg.ReportSinkDSN, storeOpts)
	if err != nil {
		return nil, fmt.Errorf("report sink: %w", err)
	}
	svc := &service{objects: objects, sink: sink}
	if closer, ok := sink.(io.Closer); ok {
		svc.closers = append(svc.closers, closer)
	}

	finalizer := intake.NewFinalizer(intake.FinalizerOptions{
		Container:   cfg.DriveFolderID,
		Target:      intake.SheetTarget{Spreadsheet: cfg.SpreadsheetID, Sheet: cfg.SheetName},
		PublicLinks: cfg.PublicLink,
		Location:    cfg.Location(),
		Messenger:   bot,
		Files:       bot,
		Tokens:      tokens,
		Objects:     objects,
		Sink:        sink,
		Logger:      logger,
	})
	svc.engine = intake.NewEngine(intake.EngineOptions{
		AllowedChats: cfg.AllowedChats(),
		DashboardURL: cfg.DashboardURL,
		BotUserID:    telegram.BotUserID(cfg.BotToken),
		Sessions:     intake.NewMemorySessionStore(cfg.SessionCapacity, cfg.SessionTTL()),
		Dedup:        intake.NewDeduplicator(cfg.DedupCapacity, cfg.DedupTTL()),
		Messenger:    bot,
		Finalizer:    finalizer,
		Logger:       logger,
	})
	svc.handler = httpapi.NewServerWithConfig(svc.engine, httpapi.ServerConfig{
		WebhookSecret: cfg.WebhookSecret,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		Logger:        logger,
	})

	logger.Info("fleetdesk configured",
		"object_store", schemeOf(cfg.ObjectStoreDSN),
		"report_sink", schemeOf(cfg.ReportSinkDSN),
		"allowed_chats", len(cfg.AllowedChats()),
		"timezone", cfg.Location().String(),
		"webhook_secret", cfg.WebhookSecret != "",
	)
	return svc, nil
}

// schemeOf keeps credentials embedded in DSNs out of the logs.
func schemeOf(dsn string) string {
	if scheme, _, ok := strings.Cut(dsn, "://"); ok {
		return scheme
	}
	if dsn == "" {
		return "none"
	}
	return "file"
}
