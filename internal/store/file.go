package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"fleetsim/internal/config"
	"fleetsim/internal/logging"
	"fleetsim/internal/profile"
)

// FileStore serves entities from a YAML profiles file. Status patches are kept in memory.
type FileStore struct {
	path string
	log  *slog.Logger
	now  func() time.Time

	mu       sync.RWMutex
	brokers  map[string]profile.Broker
	schemas  map[string]profile.Schema
	profiles map[string]profile.Profile
	status   map[string]profile.Status
}

// OpenFile validates and loads the profiles file at path.
func OpenFile(path string, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = logging.Nop()
	}
	s := &FileStore{path: path, log: log, now: time.Now, status: make(map[string]profile.Status)}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemoryStore returns a FileStore backed only by doc, without a file.
func NewMemoryStore(doc Document) *FileStore {
	s := &FileStore{log: logging.Nop(), now: time.Now, status: make(map[string]profile.Status)}
	s.replace(doc)
	return s
}

func (s *FileStore) reload() error {
	if err := config.ValidateProfilesFile(s.path); err != nil {
		return err
	}
	doc, err := ReadDocument(s.path)
	if err != nil {
		return err
	}
	s.replace(doc)
	return nil
}

// ReadDocument decodes a profiles file without validating it.
func ReadDocument(path string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("cannot unmarshal profiles: %w", err)
	}
	return doc, nil
}

func (s *FileStore) replace(doc Document) {
	brokers := make(map[string]profile.Broker, len(doc.Brokers))
	for _, b := range doc.Brokers {
		brokers[b.ID] = b
	}
	schemas := make(map[string]profile.Schema, len(doc.Schemas))
	for _, sc := range doc.Schemas {
		schemas[sc.ID] = sc
	}
	profiles := make(map[string]profile.Profile, len(doc.Profiles))
	for _, p := range doc.Profiles {
		profiles[p.ID] = p
	}
	s.mu.Lock()
	s.brokers, s.schemas, s.profiles = brokers, schemas, profiles
	s.mu.Unlock()
}

// Profile returns a copy of the profile with its current status attached.
func (s *FileStore) Profile(_ context.Context, id string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if st, ok := s.status[id]; ok {
		p.Status = &st
	}
	return &p, nil
}

// Schema returns a copy of the schema.
func (s *FileStore) Schema(_ context.Context, id string) (*profile.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schemas[id]
	if !ok {
		return nil, fmt.Errorf("schema %s: %w", id, ErrNotFound)
	}
	return &sc, nil
}

// Broker returns a copy of the broker.
func (s *FileStore) Broker(_ context.Context, id string) (*profile.Broker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.brokers[id]
	if !ok {
		return nil, fmt.Errorf("broker %s: %w", id, ErrNotFound)
	}
	return &b, nil
}

// PatchStatus merges patch into the in-memory status of profileID.
func (s *FileStore) PatchStatus(_ context.Context, profileID string, patch profile.StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profileID]; !ok {
		return fmt.Errorf("profile %s: %w", profileID, ErrNotFound)
	}
	st := s.status[profileID]
	patch.Apply(&st, s.now())
	s.status[profileID] = st
	return nil
}

// Ping always succeeds for a file store.
func (s *FileStore) Ping(context.Context) error { return nil }

// Watch reloads the file whenever it changes until ctx is done. Invalid edits are
// logged and the previous contents stay in effect.
func (s *FileStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("memory store cannot be watched")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// Watch the directory so editors that replace the file are still seen.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	base := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				continue
			}
			if err := s.reload(); err != nil {
				s.log.Error("profiles reload failed", "path", s.path, "err", err)
				continue
			}
			s.log.Info("profiles reloaded", "path", s.path)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Error("profiles watcher error", "err", err)
		}
	}
}
