// Package snapshot persists entity state to the filesystem for warm starts.
//
// Only entities, list membership, cursors and counts are written. Fetch errors
// and in-flight flags are dropped, and every restored list is marked invalid
// so the next fetch replaces it.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/smileynet/fedicache/internal/entity"
)

// formatVersion is bumped whenever Document changes incompatibly.
const formatVersion = 1

// Document is the on-disk form of a State.
type Document struct {
	Version int                 `json:"version"`
	SavedAt time.Time           `json:"saved_at"`
	Caches  map[string]CacheDoc `json:"caches"`
}

// CacheDoc is one entity type's entities and lists.
type CacheDoc struct {
	Entities map[string]json.RawMessage `json:"entities"`
	Lists    map[string]ListDoc         `json:"lists,omitempty"`
}

// ListDoc is one list's ids and paging metadata.
type ListDoc struct {
	IDs           []string   `json:"ids"`
	Next          string     `json:"next,omitempty"`
	Prev          string     `json:"prev,omitempty"`
	TotalCount    *int       `json:"total_count,omitempty"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
}

// Decoder turns one stored entity back into its typed form.
type Decoder func(data json.RawMessage) (entity.Entity, error)

// Codecs maps entity types to decoders. Types without a decoder are neither
// saved nor restored.
type Codecs map[string]Decoder

// JSONDecoder decodes entities of type T with encoding/json.
func JSONDecoder[T entity.Entity]() Decoder {
	return func(data json.RawMessage) (entity.Entity, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Encode converts s into a Document, keeping only types known to codecs.
func Encode(s *entity.State, codecs Codecs, now time.Time) (Document, error) {
	doc := Document{Version: formatVersion, SavedAt: now, Caches: make(map[string]CacheDoc)}
	for _, typ := range s.EntityTypes() {
		if _, ok := codecs[typ]; !ok {
			continue
		}
		c, _ := s.Cache(typ)
		cd := CacheDoc{Entities: make(map[string]json.RawMessage, c.Len())}
		var encErr error
		c.Range(func(e entity.Entity) bool {
			data, err := json.Marshal(e)
			if err != nil {
				encErr = fmt.Errorf("snapshot: encoding %s %s: %w", typ, e.EntityID(), err)
				return false
			}
			cd.Entities[e.EntityID()] = data
			return true
		})
		if encErr != nil {
			return Document{}, encErr
		}
		for _, key := range c.ListKeys() {
			l, _ := c.List(key)
			ls := l.State()
			if cd.Lists == nil {
				cd.Lists = make(map[string]ListDoc)
			}
			cd.Lists[key] = ListDoc{
				IDs:           l.IDs(),
				Next:          ls.Next,
				Prev:          ls.Prev,
				TotalCount:    ls.TotalCount,
				LastFetchedAt: ls.LastFetchedAt,
			}
		}
		doc.Caches[typ] = cd
	}
	return doc, nil
}

// Decode rebuilds a State from doc. Lists come back invalidated.
func Decode(doc Document, codecs Codecs) (*entity.State, error) {
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("snapshot: unsupported version %d", doc.Version)
	}
	b := entity.NewBuilder()
	for _, typ := range sortedKeys(doc.Caches) {
		dec, ok := codecs[typ]
		if !ok {
			continue
		}
		cd := doc.Caches[typ]
		for _, id := range sortedKeys(cd.Entities) {
			e, err := dec(cd.Entities[id])
			if err != nil {
				return nil, fmt.Errorf("snapshot: decoding %s %s: %w", typ, id, err)
			}
			if e.EntityID() != id {
				return nil, fmt.Errorf("snapshot: %s %s decoded with id %q", typ, id, e.EntityID())
			}
			b.Put(typ, e)
		}
		for key, ld := range cd.Lists {
			b.List(entity.Path{EntityType: typ, ListKey: key}, ld.IDs, entity.ListState{
				LastFetchedAt: ld.LastFetchedAt,
				Next:          ld.Next,
				Prev:          ld.Prev,
				TotalCount:    ld.TotalCount,
				Invalid:       true,
			})
		}
	}
	return b.Build(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FileStore persists snapshots as JSON files under a base directory, one per profile.
type FileStore struct {
	baseDir string
	codecs  Codecs
	now     func() time.Time
}

// NewFileStore creates a FileStore that saves snapshots under baseDir.
func NewFileStore(baseDir string, codecs Codecs) *FileStore {
	return &FileStore{baseDir: baseDir, codecs: codecs, now: time.Now}
}

// Save writes s to the profile's snapshot file.
func (fs *FileStore) Save(profile string, s *entity.State) error {
	p, err := fs.path(profile)
	if err != nil {
		return err
	}

	doc, err := Encode(s, fs.codecs, fs.now().UTC())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fs.baseDir, 0o755); err != nil {
		return fmt.Errorf("snapshot: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshaling: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("snapshot: replacing %s: %w", p, err)
	}
	return nil
}

// Load reads the profile's snapshot.
// Returns (state, true, nil) if found, (nil, false, nil) if not found.
func (fs *FileStore) Load(profile string) (*entity.State, bool, error) {
	p, err := fs.path(profile)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("snapshot: reading %s: %w", p, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("snapshot: parsing %s: %w", p, err)
	}
	s, err := Decode(doc, fs.codecs)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Remove deletes the profile's snapshot file.
func (fs *FileStore) Remove(profile string) error {
	p, err := fs.path(profile)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("snapshot: removing %s: %w", p, err)
	}
	return nil
}

// ErrInvalidProfile indicates a profile name is empty or contains path traversal components.
var ErrInvalidProfile = errors.New("snapshot: invalid profile")

// path returns the filesystem path for a profile's snapshot.
// It rejects names that are empty, dot-segments, or contain path separators.
func (fs *FileStore) path(profile string) (string, error) {
	if profile == "" || profile == "." || profile == ".." || profile != filepath.Base(profile) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
	}
	return filepath.Join(fs.baseDir, profile+".json"), nil
}
