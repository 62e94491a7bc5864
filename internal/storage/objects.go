package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentworkforce/fleetdesk/internal/google"
	"github.com/agentworkforce/fleetdesk/internal/intake"
	"github.com/google/uuid"
)

func BuildObjectStoreFromDSN(dsn string, opts Options) (intake.ObjectStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupObjectStoreFactory(scheme); ok {
		return factory(dsn, opts)
	}
	switch scheme {
	case "drive", "gdrive":
		return google.NewDriveClient(google.DriveOptions{BaseURL: opts.DriveBaseURL, HTTPClient: opts.HTTPClient}), nil
	case "", "file":
		dir, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileObjectStore(dir), nil
	case "memory", "mem", "inmem":
		return NewMemoryObjectStore(), nil
	case "s3", "gs", "azblob":
		return nil, fmt.Errorf("%w: object store %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported object store scheme: %s", scheme)
	}
}

type StoredFile struct {
	Container string
	Name      string
	MimeType  string
	Body      []byte
	Public    bool
}

type MemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string]*StoredFile
	order   []string
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: map[string]*StoredFile{}}
}

func (s *MemoryObjectStore) Upload(_ context.Context, _ string, req intake.UploadRequest) (intake.StoredObject, error) {
	id := uuid.NewString()
	body := append([]byte(nil), req.Body...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = &StoredFile{Container: req.Container, Name: req.Name, MimeType: req.MimeType, Body: body}
	s.order = append(s.order, id)
	return intake.StoredObject{ID: id, Link: "memory://" + req.Container + "/" + id}, nil
}

func (s *MemoryObjectStore) Publish(_ context.Context, _ string, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.objects[objectID]
	if !ok {
		return fmt.Errorf("%w: unknown object %s", ErrInvalidInput, objectID)
	}
	file.Public = true
	return nil
}

// Files returns copies of the stored files in upload order.
func (s *MemoryObjectStore) Files() []StoredFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredFile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.objects[id])
	}
	return out
}

// FileObjectStore writes uploads under Dir/<container>/<name>. Publishing is
// a no-op because local links are never shared.
type FileObjectStore struct {
	Dir string
}

func NewFileObjectStore(dir string) *FileObjectStore {
	return &FileObjectStore{Dir: dir}
}

func (s *FileObjectStore) Upload(_ context.Context, _ string, req intake.UploadRequest) (intake.StoredObject, error) {
	if s == nil || strings.TrimSpace(s.Dir) == "" {
		return intake.StoredObject{}, ErrInvalidInput
	}
	container := filepath.Base(filepath.Clean("/" + req.Container))
	name := filepath.Base(filepath.Clean("/" + req.Name))
	if container == "/" || name == "/" {
		return intake.StoredObject{}, fmt.Errorf("%w: object name", ErrInvalidInput)
	}
	dir := filepath.Join(s.Dir, container)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return intake.StoredObject{}, err
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, req.Body, 0o644); err != nil {
		return intake.StoredObject{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return intake.StoredObject{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return intake.StoredObject{ID: container + "/" + name, Link: (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()}, nil
}

func (s *FileObjectStore) Publish(context.Context, string, string) error {
	return nil
}
