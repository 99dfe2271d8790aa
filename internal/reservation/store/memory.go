package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"petregistry/internal/reservation/models"
	"petregistry/pkg/domain"
	"petregistry/pkg/platform/sentinel"
)

// InMemory keeps reservations, timelines and OTP records in maps guarded by
// one RWMutex. The active-per-pet index mirrors the partial unique index of
// the PostgreSQL schema.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[domain.ReservationID]*models.Reservation
	byCode   map[domain.ReservationCode]domain.ReservationID
	active   map[domain.PetCode]domain.ReservationID
	otps     map[domain.ReservationID][]*models.OTPRecord
	otpIndex map[string]*models.OTPRecord
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:     make(map[domain.ReservationID]*models.Reservation),
		byCode:   make(map[domain.ReservationCode]domain.ReservationID),
		active:   make(map[domain.PetCode]domain.ReservationID),
		otps:     make(map[domain.ReservationID][]*models.OTPRecord),
		otpIndex: make(map[string]*models.OTPRecord),
	}
}

func (s *InMemory) Create(_ context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[r.Code]; ok {
		return fmt.Errorf("reservation code %s: %w", r.Code, models.ErrCodeTaken)
	}
	if _, ok := s.active[r.PetCode]; ok && !r.Status.IsTerminal() {
		return fmt.Errorf("active reservation for %s: %w", r.PetCode, sentinel.ErrConflict)
	}
	s.byID[r.ID] = r.Clone()
	s.byCode[r.Code] = r.ID
	if !r.Status.IsTerminal() {
		s.active[r.PetCode] = r.ID
	}
	return nil
}

func (s *InMemory) Get(_ context.Context, id domain.ReservationID) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

// GetForUpdate is Get; the caller already holds the per-pet lock.
func (s *InMemory) GetForUpdate(ctx context.Context, id domain.ReservationID) (*models.Reservation, error) {
	return s.Get(ctx, id)
}

func (s *InMemory) GetByCode(ctx context.Context, code domain.ReservationCode) (*models.Reservation, error) {
	s.mu.RLock()
	id, ok := s.byCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", code, sentinel.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *InMemory) ActiveForPet(ctx context.Context, pet domain.PetCode) (*models.Reservation, error) {
	s.mu.RLock()
	id, ok := s.active[pet]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("active reservation for %s: %w", pet, sentinel.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// Update stores the mutable columns. The timeline is written through
// AppendTimeline only.
func (s *InMemory) Update(_ context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[r.ID]
	if !ok {
		return fmt.Errorf("reservation %s: %w", r.ID, sentinel.ErrNotFound)
	}
	next := r.Clone()
	next.Timeline = cur.Timeline
	s.byID[r.ID] = next
	if r.Status.IsTerminal() && s.active[r.PetCode] == r.ID {
		delete(s.active, r.PetCode)
	}
	return nil
}

func (s *InMemory) AppendTimeline(_ context.Context, id domain.ReservationID, entry models.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("reservation %s: %w", id, sentinel.ErrNotFound)
	}
	r.Timeline = append(r.Timeline, entry)
	return nil
}

func (s *InMemory) List(_ context.Context, f models.Filter) ([]*models.Reservation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Reservation
	for _, r := range s.byID {
		if f.Match(r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].Code < matched[j].Code
	})
	total := len(matched)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)
	out := make([]*models.Reservation, 0, end-start)
	for _, r := range matched[start:end] {
		out = append(out, r.Clone())
	}
	return out, total, nil
}

// ListExpired returns pending reservations whose deadline is at or before now.
func (s *InMemory) ListExpired(_ context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Reservation
	for _, r := range s.byID {
		if r.IsExpired(now) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) ExistingCodes(_ context.Context, codes []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for _, c := range codes {
		if _, ok := s.byCode[domain.ReservationCode(c)]; ok {
			out[c] = true
		}
	}
	return out, nil
}

func (s *InMemory) AppendOTP(_ context.Context, rec *models.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	c := *rec
	s.otps[rec.ReservationID] = append(s.otps[rec.ReservationID], &c)
	s.otpIndex[c.ID] = &c
	return nil
}

// LatestUnusedOTP returns the most recently issued record if it is unused.
// An older unused record never verifies once a newer one exists.
func (s *InMemory) LatestUnusedOTP(_ context.Context, id domain.ReservationID) (*models.OTPRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.otps[id]
	if len(recs) == 0 || recs[len(recs)-1].IsUsed() {
		return nil, fmt.Errorf("otp for %s: %w", id, sentinel.ErrNotFound)
	}
	c := *recs[len(recs)-1]
	return &c, nil
}

// MarkOTPUsed consumes the record once; a second call returns ErrAlreadyUsed.
func (s *InMemory) MarkOTPUsed(_ context.Context, otpID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.otpIndex[otpID]
	if !ok {
		return fmt.Errorf("otp %s: %w", otpID, sentinel.ErrNotFound)
	}
	if rec.IsUsed() {
		return fmt.Errorf("otp %s: %w", otpID, sentinel.ErrAlreadyUsed)
	}
	rec.UsedAt = &at
	return nil
}

func (s *InMemory) OTPs(_ context.Context, id domain.ReservationID) ([]models.OTPRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OTPRecord, 0, len(s.otps[id]))
	for _, r := range s.otps[id] {
		out = append(out, *r)
	}
	return out, nil
}
