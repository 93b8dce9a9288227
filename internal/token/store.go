// Package token owns credential records: durable storage and refresh.
package token

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/storage"
)

const tokenFilePrefix = "strava_token_"

// Store reads and writes credential records. Implementations replace whole
// records on save; read-modify-write across processes is not coordinated.
type Store interface {
	// Load returns the most recently issued credential record.
	Load(ctx context.Context) (domain.Credential, error)
	// Save persists the record, replacing any previous version of it.
	Save(ctx context.Context, cred domain.Credential) error
	// List returns all records, most recently issued first.
	List(ctx context.Context) ([]domain.Credential, error)
}

// DirStore keeps one JSON file per credential record under a directory,
// named strava_token_<issued-at>.json. This matches the layout the consent
// flow has always written, so existing token directories keep working.
type DirStore struct {
	dir string
}

// NewDirStore constructs a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Load returns the most recently issued record in the directory.
func (s *DirStore) Load(ctx context.Context) (domain.Credential, error) {
	creds, err := s.List(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	if len(creds) == 0 {
		return domain.Credential{}, fmt.Errorf("no token files in %s: %w", s.dir, domain.ErrNotFound)
	}
	return creds[0], nil
}

// Save writes the record to its issuance-keyed file. A refresh keeps the
// original IssuedAt, so the record is replaced in place.
func (s *DirStore) Save(_ context.Context, cred domain.Credential) error {
	if cred.IssuedAt == 0 {
		cred.IssuedAt = time.Now().Unix()
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s%d.json", tokenFilePrefix, cred.IssuedAt))
	return storage.WriteJSONAtomic(path, cred)
}

// List loads every token file, most recently issued first.
func (s *DirStore) List(_ context.Context) ([]domain.Credential, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token dir %s: %w", s.dir, err)
	}

	var creds []domain.Credential
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || len(name) <= len(tokenFilePrefix) || name[:len(tokenFilePrefix)] != tokenFilePrefix {
			continue
		}
		var cred domain.Credential
		if err := storage.ReadJSON(filepath.Join(s.dir, name), &cred); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].IssuedAt > creds[j].IssuedAt })
	return creds, nil
}

// FileStore pins the store to one explicit token file, for the
// -token-file CLI override.
type FileStore struct {
	path string
}

// NewFileStore constructs a FileStore for the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the pinned token file.
func (s *FileStore) Load(_ context.Context) (domain.Credential, error) {
	var cred domain.Credential
	if err := storage.ReadJSON(s.path, &cred); err != nil {
		return domain.Credential{}, err
	}
	return cred, nil
}

// Save replaces the pinned token file.
func (s *FileStore) Save(_ context.Context, cred domain.Credential) error {
	if cred.IssuedAt == 0 {
		cred.IssuedAt = time.Now().Unix()
	}
	return storage.WriteJSONAtomic(s.path, cred)
}

// List returns the single pinned record, if present.
func (s *FileStore) List(ctx context.Context) ([]domain.Credential, error) {
	cred, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return []domain.Credential{cred}, nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	creds []domain.Credential
}

// NewMemStore constructs a MemStore seeded with the given records.
func NewMemStore(creds ...domain.Credential) *MemStore {
	return &MemStore{creds: creds}
}

// Load returns the most recently issued record.
func (s *MemStore) Load(ctx context.Context) (domain.Credential, error) {
	creds, err := s.List(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	if len(creds) == 0 {
		return domain.Credential{}, domain.ErrNotFound
	}
	return creds[0], nil
}

// Save replaces the record sharing IssuedAt, or appends a new one.
func (s *MemStore) Save(_ context.Context, cred domain.Credential) error {
	if cred.IssuedAt == 0 {
		cred.IssuedAt = time.Now().Unix()
	}
	for i, existing := range s.creds {
		if existing.IssuedAt == cred.IssuedAt {
			s.creds[i] = cred
			return nil
		}
	}
	s.creds = append(s.creds, cred)
	return nil
}

// List returns all records, most recently issued first.
func (s *MemStore) List(_ context.Context) ([]domain.Credential, error) {
	out := make([]domain.Credential, len(s.creds))
	copy(out, s.creds)
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt > out[j].IssuedAt })
	return out, nil
}
