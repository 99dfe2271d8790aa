package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	"petregistry/pkg/platform/sentinel"
)

// InMemory keeps entries and history in maps guarded by one RWMutex. Each
// method is atomic; multi-step flows serialize per pet code through the
// sharded tx runner.
type InMemory struct {
	mu       sync.RWMutex
	entries  map[domain.PetCode]*models.Entry
	history  map[domain.PetCode][]models.HistoryRecord
	byOrigin map[string]domain.PetCode
}

func NewInMemory() *InMemory {
	return &InMemory{
		entries:  make(map[domain.PetCode]*models.Entry),
		history:  make(map[domain.PetCode][]models.HistoryRecord),
		byOrigin: make(map[string]domain.PetCode),
	}
}

func originKeys(refs models.OriginRefs) []string {
	var keys []string
	if refs.DirectPetID != "" {
		keys = append(keys, "direct:"+refs.DirectPetID)
	}
	if refs.ShopItemID != "" {
		keys = append(keys, "shop:"+refs.ShopItemID)
	}
	if refs.AdoptionPetID != "" {
		keys = append(keys, "adoption:"+refs.AdoptionPetID)
	}
	return keys
}

func (s *InMemory) Get(_ context.Context, code domain.PetCode) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[code]
	if !ok {
		return nil, fmt.Errorf("pet %s: %w", code, sentinel.ErrNotFound)
	}
	return e.Clone(), nil
}

// GetForUpdate is Get; the caller already holds the per-key lock.
func (s *InMemory) GetForUpdate(ctx context.Context, code domain.PetCode) (*models.Entry, error) {
	return s.Get(ctx, code)
}

func (s *InMemory) FindByOriginRef(_ context.Context, refs models.OriginRefs) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range originKeys(refs) {
		if code, ok := s.byOrigin[k]; ok {
			return s.entries[code].Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Insert(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.PetCode]; ok {
		return fmt.Errorf("pet %s: %w", entry.PetCode, sentinel.ErrConflict)
	}
	keys := originKeys(entry.OriginRefs)
	for _, k := range keys {
		if _, ok := s.byOrigin[k]; ok {
			return fmt.Errorf("origin ref %s: %w", k, sentinel.ErrConflict)
		}
	}
	s.entries[entry.PetCode] = entry.Clone()
	for _, k := range keys {
		s.byOrigin[k] = entry.PetCode
	}
	return nil
}

func (s *InMemory) Update(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.PetCode]; !ok {
		return fmt.Errorf("pet %s: %w", entry.PetCode, sentinel.ErrNotFound)
	}
	keys := originKeys(entry.OriginRefs)
	for _, k := range keys {
		if owner, ok := s.byOrigin[k]; ok && owner != entry.PetCode {
			return fmt.Errorf("origin ref %s: %w", k, sentinel.ErrConflict)
		}
	}
	s.entries[entry.PetCode] = entry.Clone()
	for _, k := range keys {
		s.byOrigin[k] = entry.PetCode
	}
	return nil
}

// AppendHistory closes the previous record's EndDate and appends rec with
// the next sequence number.
func (s *InMemory) AppendHistory(_ context.Context, rec *models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.history[rec.PetCode]
	if rec.IdempotencyKey != "" {
		for _, r := range records {
			if r.IdempotencyKey == rec.IdempotencyKey {
				return fmt.Errorf("idempotency key %s: %w", rec.IdempotencyKey, sentinel.ErrConflict)
			}
		}
	}
	if n := len(records); n > 0 && records[n-1].EndDate == nil {
		end := rec.TransferDate
		records[n-1].EndDate = &end
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Seq = len(records) + 1
	s.history[rec.PetCode] = append(records, *rec)
	return nil
}

func (s *InMemory) History(_ context.Context, code domain.PetCode) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history[code]), nil
}

func (s *InMemory) FindHistoryByKey(_ context.Context, code domain.PetCode, key string) (*models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.history[code] {
		if r.IdempotencyKey == key {
			rec := r
			return &rec, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Search orders by pet code for stable paging.
func (s *InMemory) Search(_ context.Context, f models.Filters) (*models.SearchResult, error) {
	s.mu.RLock()
	var matched []*models.Entry
	for _, e := range s.entries {
		if f.Match(e) {
			matched = append(matched, e.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.Entry) int {
		return strings.Compare(string(a.PetCode), string(b.PetCode))
	})
	total := len(matched)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)
	return &models.SearchResult{Entries: matched[start:end], Total: total}, nil
}

// ExistingCodes implements identity.CodeChecker.
func (s *InMemory) ExistingCodes(_ context.Context, codes []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for _, c := range codes {
		if _, ok := s.entries[domain.PetCode(c)]; ok {
			out[c] = true
		}
	}
	return out, nil
}
