// Package refstore canonicalizes image identity for a single agent run.
// Tools and the model address ephemeral image artifacts by loose,
// historically inconsistent string shapes (bare ids, asset URLs,
// filenames, numeric indexes, data: URIs); the store resolves them all
// to one entry per canonical id.
package refstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImageKind records how an image entered the store.
type ImageKind string

const (
	KindUploaded  ImageKind = "uploaded"
	KindGenerated ImageKind = "generated"
	KindReference ImageKind = "reference"
)

// StoredImage is one canonical image entry. Payload is either raw bytes
// (Data) or a durable URL; both may be set once the image is persisted.
// Aliases are append-only and deduplicated, and always contain the
// canonical id itself.
type StoredImage struct {
	CanonicalID string
	Data        []byte
	URL         string
	MIMEType    string
	Kind        ImageKind
	Description string
	Aliases     []string
	CreatedAt   time.Time
}

// RegisterOpts are the inputs to Store.Register. ID is optional; a fresh
// canonical id is minted when absent.
type RegisterOpts struct {
	ID          string
	Data        []byte
	URL         string
	MIMEType    string
	Kind        ImageKind
	Description string
	Aliases     []string
}

// Store is the per-run image registry. Each agent run owns exactly one
// instance and nothing else mutates it, so no locking is required.
type Store struct {
	byID    map[string]*StoredImage
	byAlias map[string]string
	order   []string
}

// New returns an empty reference store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*StoredImage),
		byAlias: make(map[string]string),
	}
}

// Register stores an image or merges aliases into an existing entry.
// Registration is idempotent: registering a known id again union-merges
// the new aliases and returns the same canonical id.
func (s *Store) Register(opts RegisterOpts) string {
	id := opts.ID
	if id == "" {
		id = mintID()
	}

	entry, exists := s.byID[id]
	if !exists {
		entry = &StoredImage{
			CanonicalID: id,
			Data:        opts.Data,
			URL:         opts.URL,
			MIMEType:    opts.MIMEType,
			Kind:        opts.Kind,
			Description: opts.Description,
			CreatedAt:   time.Now(),
		}
		s.byID[id] = entry
		s.order = append(s.order, id)
		s.addAlias(entry, id)
	} else {
		// Merge: payload and description may arrive after the id was
		// first seen as a bare reference.
		if entry.Data == nil && opts.Data != nil {
			entry.Data = opts.Data
		}
		if entry.URL == "" && opts.URL != "" {
			entry.URL = opts.URL
		}
		if entry.MIMEType == "" && opts.MIMEType != "" {
			entry.MIMEType = opts.MIMEType
		}
		if entry.Description == "" && opts.Description != "" {
			entry.Description = opts.Description
		}
	}

	for _, alias := range opts.Aliases {
		s.addAlias(entry, alias)
	}

	return id
}

// addAlias appends an alias if unseen and indexes its normalized form.
func (s *Store) addAlias(entry *StoredImage, alias string) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return
	}
	for _, existing := range entry.Aliases {
		if existing == alias {
			return
		}
	}
	entry.Aliases = append(entry.Aliases, alias)
	norm := NormalizeRef(alias)
	if _, taken := s.byAlias[norm]; !taken {
		s.byAlias[norm] = entry.CanonicalID
	}
}

// Resolve looks up an arbitrary string reference. Lookup order: exact
// canonical id, normalized alias, then the fixed reference variations.
// A miss is an ordinary lookup failure, not an error; the dispatcher
// turns it into a recoverable tool failure.
func (s *Store) Resolve(ref string) (*StoredImage, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}

	if entry, ok := s.byID[ref]; ok {
		return entry, true
	}

	norm := NormalizeRef(ref)
	if img, ok := s.lookup(norm); ok {
		return img, true
	}

	for _, variation := range refVariations(norm) {
		if img, ok := s.lookup(variation); ok {
			return img, true
		}
	}

	return nil, false
}

func (s *Store) lookup(ref string) (*StoredImage, bool) {
	if entry, ok := s.byID[ref]; ok {
		return entry, true
	}
	if id, ok := s.byAlias[ref]; ok {
		return s.byID[id], true
	}
	return nil, false
}

// Get returns the entry for a canonical id without alias resolution.
func (s *Store) Get(id string) (*StoredImage, bool) {
	entry, ok := s.byID[id]
	return entry, ok
}

// All returns every stored image in registration order.
func (s *Store) All() []*StoredImage {
	out := make([]*StoredImage, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len reports the number of canonical entries.
func (s *Store) Len() int {
	return len(s.byID)
}

func mintID() string {
	return "img_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
