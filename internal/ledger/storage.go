package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/storage"
)

// Storage persists the full ledger map. Implementations replace the whole
// artifact on save.
type Storage interface {
	Load(ctx context.Context) (map[int64]domain.Critique, error)
	Save(ctx context.Context, entries map[int64]domain.Critique) error
}

// fileEntry is the on-disk shape of one ledger entry, kept compatible with
// the activity_critiques.json files earlier versions of the toolkit wrote.
type fileEntry struct {
	Text        string  `json:"critique"`
	GeneratedAt string  `json:"generated_at,omitempty"`
	Uploaded    bool    `json:"uploaded"`
	UploadedAt  *string `json:"uploaded_at,omitempty"`
}

// FileStorage keeps the ledger in one JSON object keyed by decimal
// activity id.
type FileStorage struct {
	path string
}

// NewFileStorage constructs a FileStorage writing to path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads the ledger file. A missing file yields an empty ledger.
func (s *FileStorage) Load(_ context.Context) (map[int64]domain.Critique, error) {
	var raw map[string]fileEntry
	if err := storage.ReadJSON(s.path, &raw); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return map[int64]domain.Critique{}, nil
		}
		return nil, err
	}

	entries := make(map[int64]domain.Critique, len(raw))
	for key, fe := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errors.Join(domain.ErrCorruptState, err)
		}
		entry := domain.Critique{
			ActivityID: id,
			Text:       fe.Text,
			Uploaded:   fe.Uploaded,
		}
		if fe.GeneratedAt != "" {
			if ts, err := parseTimestamp(fe.GeneratedAt); err == nil {
				entry.GeneratedAt = ts
			}
		}
		if fe.UploadedAt != nil {
			if ts, err := parseTimestamp(*fe.UploadedAt); err == nil {
				entry.UploadedAt = &ts
			}
		}
		entries[id] = entry
	}
	return entries, nil
}

// Save atomically replaces the ledger file.
func (s *FileStorage) Save(_ context.Context, entries map[int64]domain.Critique) error {
	raw := make(map[string]fileEntry, len(entries))
	for id, entry := range entries {
		fe := fileEntry{
			Text:     entry.Text,
			Uploaded: entry.Uploaded,
		}
		if !entry.GeneratedAt.IsZero() {
			fe.GeneratedAt = formatTimestamp(entry.GeneratedAt)
		}
		if entry.UploadedAt != nil {
			formatted := formatTimestamp(*entry.UploadedAt)
			fe.UploadedAt = &formatted
		}
		raw[strconv.FormatInt(id, 10)] = fe
	}
	return storage.WriteJSONAtomic(s.path, raw)
}

// MemStorage is an in-memory Storage for tests.
type MemStorage struct {
	entries map[int64]domain.Critique
	saves   int
}

// NewMemStorage constructs an empty MemStorage.
func NewMemStorage() *MemStorage {
	return &MemStorage{entries: map[int64]domain.Critique{}}
}

// Load returns a copy of the stored entries.
func (s *MemStorage) Load(_ context.Context) (map[int64]domain.Critique, error) {
	out := make(map[int64]domain.Critique, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry
	}
	return out, nil
}

// Save replaces the stored entries.
func (s *MemStorage) Save(_ context.Context, entries map[int64]domain.Critique) error {
	out := make(map[int64]domain.Critique, len(entries))
	for id, entry := range entries {
		out[id] = entry
	}
	s.entries = out
	s.saves++
	return nil
}

// Saves reports how many times Save ran, for persistence assertions.
func (s *MemStorage) Saves() int { return s.saves }
