package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const testBotToken = "4242:cli-secret"

type recordedCall struct {
	Method string
	Body   map[string]any
}

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/bot"+testBotToken+"/")
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: method, Body: body})
	f.mu.Unlock()

	switch method {
	case "setWebhook", "deleteWebhook":
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	case "getWebhookInfo":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"url":"https://fleet.example/webhook","pending_update_count":3,"last_error_message":"Connection refused"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Not Found"}`))
	}
}

func setup(t *testing.T, extra ...string) (string, *fakeBotAPI) {
	t.Helper()
	bot := &fakeBotAPI{}
	server := httptest.NewServer(bot)
	t.Cleanup(server.Close)
	lines := append([]string{
		"BOT_TOKEN=" + testBotToken,
		"TELEGRAM_API_BASE=" + server.URL,
	}, extra...)
	path := filepath.Join(t.TempDir(), "cli.env")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path, bot
}

func TestSetUsesConfiguredURLAndSecret(t *testing.T) {
	envFile, bot := setup(t, "WEBHOOK_URL=https://fleet.example/webhook", "WEBHOOK_SECRET=hook-secret")
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"--env-file", envFile, "set", "--drop-pending"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("set failed: %v (%s)", err, stderr.String())
	}
	if len(bot.calls) != 1 || bot.calls[0].Method != "setWebhook" {
		t.Fatalf("expected one setWebhook call, got %+v", bot.calls)
	}
	body := bot.calls[0].Body
	if body["url"] != "https://fleet.example/webhook" || body["secret_token"] != "hook-secret" || body["drop_pending_updates"] != true {
		t.Fatalf("unexpected setWebhook body %+v", body)
	}
	updates, _ := body["allowed_updates"].([]any)
	if len(updates) != 2 {
		t.Fatalf("expected default allowed updates, got %+v", body["allowed_updates"])
	}
	if !strings.Contains(stdout.String(), "with secret token") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestSetURLFlagOverridesConfig(t *testing.T) {
	envFile, bot := setup(t, "WEBHOOK_URL=https://old.example/webhook")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--env-file", envFile, "set", "--url", "https://new.example/webhook", "--max-connections", "5"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body := bot.calls[0].Body
	if body["url"] != "https://new.example/webhook" || body["max_connections"] != float64(5) {
		t.Fatalf("unexpected body %+v", body)
	}
	if _, ok := body["secret_token"]; ok {
		t.Fatalf("expected no secret token when unset, got %+v", body)
	}
}

func TestSetRequiresURL(t *testing.T) {
	envFile, bot := setup(t)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--env-file", envFile, "set"}, &stdout, &stderr)
	if !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if len(bot.calls) != 0 {
		t.Fatalf("expected no API calls, got %d", len(bot.calls))
	}
}

func TestInfoPrintsRegistration(t *testing.T) {
	envFile, _ := setup(t)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--env-file", envFile, "info"}, &stdout, &stderr); err != nil {
		t.Fatalf("info failed: %v", err)
	}
	var info map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		t.Fatalf("decode output: %v (%s)", err, stdout.String())
	}
	if info["url"] != "https://fleet.example/webhook" || info["pending_update_count"] != float64(3) {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestDeletePassesDropPending(t *testing.T) {
	envFile, bot := setup(t)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--env-file", envFile, "delete", "--drop-pending"}, &stdout, &stderr); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if bot.calls[0].Method != "deleteWebhook" || bot.calls[0].Body["drop_pending_updates"] != true {
		t.Fatalf("unexpected call %+v", bot.calls[0])
	}
	if strings.TrimSpace(stdout.String()) != "webhook deleted" {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestUnknownAndMissingCommands(t *testing.T) {
	envFile, _ := setup(t)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--env-file", envFile}, &stdout, &stderr); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error for missing command, got %v", err)
	}
	if err := run(context.Background(), []string{"--env-file", envFile, "rotate"}, &stdout, &stderr); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error for unknown command, got %v", err)
	}
	if !strings.Contains(stderr.String(), "usage: fleetdesk-webhook") {
		t.Fatalf("expected usage text, got %q", stderr.String())
	}
}

func TestAPIErrorsAreReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer server.Close()
	path := filepath.Join(t.TempDir(), "cli.env")
	if err := os.WriteFile(path, []byte("BOT_TOKEN="+testBotToken+"\nTELEGRAM_API_BASE="+server.URL+"\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--env-file", path, "info"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if strings.Contains(err.Error(), testBotToken) {
		t.Fatalf("expected token to be kept out of errors, got %v", err)
	}
}
