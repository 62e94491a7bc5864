package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type sentMessage struct {
	ChatID int64
	Reply  Reply
}

type editedMessage struct {
	ChatID    int64
	MessageID int64
	Text      string
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int64
	sent    []sentMessage
	edits   []editedMessage
	sendErr error
	editErr error
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, reply Reply) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	m.nextID++
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Reply: reply})
	return m.nextID, nil
}

func (m *fakeMessenger) Edit(_ context.Context, chatID, messageID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, editedMessage{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (m *fakeMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		out = append(out, msg.Reply.Text)
	}
	return out
}

func (m *fakeMessenger) lastText() string {
	texts := m.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (m *fakeMessenger) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.edits = nil
}

type fakeFiles struct {
	mu         sync.Mutex
	resolved   []string
	resolveErr error
	fetchErr   error
	body       []byte
}

func (f *fakeFiles) ResolveFile(_ context.Context, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, fileID)
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return "https://files.test/" + fileID, nil
}

func (f *fakeFiles) Fetch(_ context.Context, locator string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.body != nil {
		return f.body, nil
	}
	return []byte("bytes of " + locator), nil
}

type fakeTokens struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (t *fakeTokens) Token(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	return "token-1", nil
}

type fakeObjects struct {
	mu         sync.Mutex
	uploads    []UploadRequest
	tokens     []string
	published  []string
	uploadErr  error
	publishErr error
}

func (o *fakeObjects) Upload(_ context.Context, token string, req UploadRequest) (StoredObject, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tokens = append(o.tokens, token)
	if o.uploadErr != nil {
		return StoredObject{}, o.uploadErr
	}
	o.uploads = append(o.uploads, req)
	id := fmt.Sprintf("obj-%d", len(o.uploads))
	return StoredObject{ID: id, Link: "https://objects.test/" + id}, nil
}

func (o *fakeObjects) Publish(_ context.Context, _ string, objectID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.publishErr != nil {
		return o.publishErr
	}
	o.published = append(o.published, objectID)
	return nil
}

type fakeSink struct {
	mu        sync.Mutex
	rows      [][]string
	targets   []SheetTarget
	appendErr error
	targetErr error
}

func (s *fakeSink) AppendRow(_ context.Context, _ string, target SheetTarget, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.targets = append(s.targets, target)
	s.rows = append(s.rows, append([]string(nil), row...))
	return nil
}

func (s *fakeSink) CheckTarget(SheetTarget) error {
	return s.targetErr
}

var errUnavailable = errors.New("service unavailable")
