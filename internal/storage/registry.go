package storage

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/agentworkforce/fleetdesk/internal/intake"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// Options carries what the built-in remote backends need.
type Options struct {
	HTTPClient    *http.Client
	DriveBaseURL  string
	SheetsBaseURL string
}

type ObjectStoreFactory func(dsn string, opts Options) (intake.ObjectStore, error)
type ReportSinkFactory func(dsn string, opts Options) (intake.ReportSink, error)

var factoryRegistry = struct {
	mu      sync.RWMutex
	objects map[string]ObjectStoreFactory
	sinks   map[string]ReportSinkFactory
}{
	objects: map[string]ObjectStoreFactory{},
	sinks:   map[string]ReportSinkFactory{},
}

// RegisterObjectStoreFactory makes BuildObjectStoreFromDSN hand DSNs with
// the given scheme to factory. Registered schemes take precedence over the
// built-in ones.
func RegisterObjectStoreFactory(scheme string, factory ObjectStoreFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()
	factoryRegistry.objects[scheme] = factory
}

func RegisterReportSinkFactory(scheme string, factory ReportSinkFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()
	factoryRegistry.sinks[scheme] = factory
}

func lookupObjectStoreFactory(scheme string) (ObjectStoreFactory, bool) {
	scheme = normalizeScheme(scheme)
	factoryRegistry.mu.RLock()
	defer factoryRegistry.mu.RUnlock()
	factory, ok := factoryRegistry.objects[scheme]
	return factory, ok
}

func lookupReportSinkFactory(scheme string) (ReportSinkFactory, bool) {
	scheme = normalizeScheme(scheme)
	factoryRegistry.mu.RLock()
	defer factoryRegistry.mu.RUnlock()
	factory, ok := factoryRegistry.sinks[scheme]
	return factory, ok
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if host := strings.TrimSpace(parsed.Host); host != "" {
		path = host + path
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}
