package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/agentworkforce/fleetdesk/internal/config"
	"github.com/agentworkforce/fleetdesk/internal/storage"
)

const testBotToken = "123456:test-secret"

type fakeBotAPI struct {
	mu     sync.Mutex
	nextID int64
	sent   []string
	edits  []string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/file/bot"+testBotToken+"/"):
		_, _ = w.Write([]byte("jpeg-bytes"))
		return
	case !strings.HasPrefix(r.URL.Path, "/bot"+testBotToken+"/"):
		http.NotFound(w, r)
		return
	}
	var payload struct {
		Text   string `json:"text"`
		FileID string `json:"file_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	switch strings.TrimPrefix(r.URL.Path, "/bot"+testBotToken+"/") {
	case "sendMessage":
		f.nextID++
		f.sent = append(f.sent, payload.Text)
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d}}`, f.nextID)
	case "editMessageText":
		f.edits = append(f.edits, payload.Text)
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	case "getFile":
		fmt.Fprintf(w, `{"ok":true,"result":{"file_id":%q,"file_path":"photos/%s.jpg"}}`, payload.FileID, payload.FileID)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Not Found"}`))
	}
}

func writeEnvFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleetdesk.env")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func newTestService(t *testing.T, extra ...string) (*service, *fakeBotAPI) {
	t.Helper()
	bot := &fakeBotAPI{}
	api := httptest.NewServer(bot)
	t.Cleanup(api.Close)

	lines := append([]string{
		"BOT_TOKEN=" + testBotToken,
		"TELEGRAM_API_BASE=" + api.URL,
		"DRIVE_FOLDER_ID=folder-1",
		"SPREADSHEET_ID=sheet-1",
		"OBJECT_STORE_DSN=memory://",
		"REPORT_SINK_DSN=memory://",
		"TIMEZONE=UTC",
		"WEBHOOK_SECRET=hook-secret",
	}, extra...)
	cfg, err := config.Load(writeEnvFile(t, lines...))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	svc, err := buildService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), api.Client())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, bot
}

func postUpdate(t *testing.T, handler http.Handler, body string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hook-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func textUpdate(id int, text string) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"chat":{"id":77,"type":"private"},"from":{"id":5,"username":"driver1"},"text":%q}}`, id, id, text)
}

func photoUpdate(id int) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"chat":{"id":77,"type":"private"},"from":{"id":5,"username":"driver1"},"photo":[{"file_id":"thumb","width":90,"height":90},{"file_id":"full","width":1280,"height":720}]}}`, id, id)
}

func TestWebhookToSinkEndToEnd(t *testing.T) {
	svc, bot := newTestService(t)

	for i, text := range []string{"/start", "truck", "5626", "brake pad", "driver", "59.20", "-"} {
		postUpdate(t, svc.handler, textUpdate(i+1, text))
	}
	postUpdate(t, svc.handler, photoUpdate(100))
	postUpdate(t, svc.handler, photoUpdate(100))

	sink := svc.sink.(*storage.MemoryReportSink)
	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 row, got %d", len(entries))
	}
	record := entries[0].Record
	if record.Asset != "truck 5626" || record.Amount != "59.2" || record.Payer != "driver" || record.Reporter != "@driver1" || record.Notes != "" {
		t.Fatalf("unexpected record %+v", record)
	}
	if entries[0].Spreadsheet != "sheet-1" || entries[0].Sheet != "Sheet1" {
		t.Fatalf("unexpected destination %+v", entries[0])
	}
	if !strings.HasPrefix(record.ArtifactLink, "memory://folder-1/") {
		t.Fatalf("unexpected artifact link %q", record.ArtifactLink)
	}

	files := svc.objects.(*storage.MemoryObjectStore).Files()
	if len(files) != 1 {
		t.Fatalf("expected 1 stored file, got %d", len(files))
	}
	if !bytes.Equal(files[0].Body, []byte("jpeg-bytes")) || !files[0].Public || files[0].Container != "folder-1" {
		t.Fatalf("unexpected stored file %+v", files[0])
	}
	if !strings.HasPrefix(files[0].Name, "77-") || !strings.HasSuffix(files[0].Name, "-invoice.jpg") {
		t.Fatalf("unexpected object name %q", files[0].Name)
	}

	bot.mu.Lock()
	defer bot.mu.Unlock()
	if len(bot.edits) != 1 || bot.edits[0] != "Saved." {
		t.Fatalf("expected one Saved. edit, got %v", bot.edits)
	}
	if svc.engine.Session(77).Step != "done" {
		t.Fatalf("expected done, got %s", svc.engine.Session(77).Step)
	}
}

func TestAllowListIsEnforced(t *testing.T) {
	svc, bot := newTestService(t, "ALLOWED_CHAT_IDS=1,2")
	postUpdate(t, svc.handler, textUpdate(1, "truck"))

	if svc.engine.Session(77).Step != "unit-type" {
		t.Fatalf("expected denied chat to stay at unit-type, got %s", svc.engine.Session(77).Step)
	}
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if len(bot.sent) != 1 || bot.sent[0] != "Access denied for this chat." {
		t.Fatalf("expected denial, got %v", bot.sent)
	}
}

func TestWebhookSecretRequired(t *testing.T) {
	svc, _ := newTestService(t)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textUpdate(1, "truck")))
	rec := httptest.NewRecorder()
	svc.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestBuildServiceRejectsUnknownBackends(t *testing.T) {
	cfg, err := config.Load(writeEnvFile(t, "BOT_TOKEN="+testBotToken, "REPORT_SINK_DSN=bigquery://dataset"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	_, err = buildService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err == nil || !strings.Contains(err.Error(), "report sink") {
		t.Fatalf("expected report sink error, got %v", err)
	}
}

func TestBuildServiceRejectsBadGoogleKey(t *testing.T) {
	cfg, err := config.Load(writeEnvFile(t,
		"BOT_TOKEN="+testBotToken,
		"GOOGLE_CLIENT_EMAIL=svc@example.iam.gserviceaccount.com",
		"GOOGLE_PRIVATE_KEY=not-a-key",
	))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := buildService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil); err == nil {
		t.Fatalf("expected google credential error")
	}
}

func TestRunFailsOnMissingEnvFile(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, &out)
	if err == nil || !strings.Contains(err.Error(), "config:") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	path := writeEnvFile(t,
		"BOT_TOKEN="+testBotToken,
		"OBJECT_STORE_DSN=memory://",
		"REPORT_SINK_DSN=memory://",
		"PORT=0",
		"SHUTDOWN_TIMEOUT=1s",
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := run(ctx, []string{"--env-file", path}, &out); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if !strings.Contains(out.String(), "http server stopped") {
		t.Fatalf("expected shutdown log, got %s", out.String())
	}
}

func TestSchemeOf(t *testing.T) {
	cases := map[string]string{
		"postgres://user:pw@db/fleet": "postgres",
		"memory://":                   "memory",
		"./reports.jsonl":             "file",
		"":                            "none",
	}
	for in, want := range cases {
		if got := schemeOf(in); got != want {
			t.Fatalf("schemeOf(%q): expected %q, got %q", in, want, got)
		}
	}
}
