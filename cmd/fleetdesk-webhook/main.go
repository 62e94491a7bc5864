package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentworkforce/fleetdesk/internal/config"
	"github.com/agentworkforce/fleetdesk/internal/telegram"
	"github.com/spf13/pflag"
)

const usage = `usage: fleetdesk-webhook [--env-file PATH] <command> [flags]

commands:
  set     register the webhook URL and secret token
  info    print the current webhook registration
  delete  remove the webhook registration
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "fleetdesk-webhook: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := pflag.NewFlagSet("fleetdesk-webhook", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := global.String("env-file", "", "path to a .env file (default ./.env when present)")
	timeout := global.Duration("timeout", 30*time.Second, "request timeout")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	client := telegram.NewClient(telegram.ClientOptions{
		BaseURL: cfg.TelegramAPIBase,
		Token:   cfg.BotToken,
	})
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "set":
		return runSet(ctx, client, cfg, cmdArgs, stdout, stderr)
	case "info":
		return runInfo(ctx, client, cmdArgs, stdout, stderr)
	case "delete":
		return runDelete(ctx, client, cmdArgs, stdout, stderr)
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func runSet(ctx context.Context, client *telegram.Client, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("set", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	url := flags.String("url", cfg.WebhookURL, "public HTTPS URL of the /webhook endpoint (default WEBHOOK_URL)")
	dropPending := flags.Bool("drop-pending", false, "drop updates queued before registration")
	maxConnections := flags.Int("max-connections", 0, "maximum concurrent deliveries (0 keeps the server default)")
	allowed := flags.StringSlice("allowed-updates", []string{"message", "edited_message"}, "update types to deliver")
	if err := flags.Parse(args); err != nil {
		return err
	}
	target := strings.TrimSpace(*url)
	if target == "" {
		return fmt.Errorf("%w: --url or WEBHOOK_URL is required", errUsage)
	}
	err := client.SetWebhook(ctx, telegram.WebhookOptions{
		URL:                target,
		SecretToken:        cfg.WebhookSecret,
		AllowedUpdates:     *allowed,
		DropPendingUpdates: *dropPending,
		MaxConnections:     *maxConnections,
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	secret := "without secret token"
	if cfg.WebhookSecret != "" {
		secret = "with secret token"
	}
	fmt.Fprintf(stdout, "webhook set to %s (%s)\n", target, secret)
	return nil
}

func runInfo(ctx context.Context, client *telegram.Client, args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("info", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		return err
	}
	info, err := client.GetWebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func runDelete(ctx context.Context, client *telegram.Client, args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	dropPending := flags.Bool("drop-pending", false, "drop updates queued on the server")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := client.DeleteWebhook(ctx, *dropPending); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	fmt.Fprintln(stdout, "webhook deleted")
	return nil
}
