// Package memory is an in-process BannerRepository used in dev mode and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"rental_api/internal/domain"
)

type Store struct {
	mu      sync.RWMutex
	banners map[string]domain.Banner
}

func New() *Store { return &Store{banners: map[string]domain.Banner{}} }

func (s *Store) Create(ctx context.Context, b domain.Banner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banners[b.ID] = clone(b)
	return nil
}

func (s *Store) Update(ctx context.Context, id string, p domain.BannerPatch) error {
	return s.mutate(id, func(b *domain.Banner) { p.Apply(b) })
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.banners[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.banners, id)
	return nil
}

func (s *Store) ToggleActive(ctx context.Context, id string, at time.Time) error {
	return s.mutate(id, func(b *domain.Banner) {
		b.IsActive = !b.IsActive
		b.UpdatedAt = at
	})
}

func (s *Store) Increment(ctx context.Context, id string, c domain.Counter) error {
	return s.mutate(id, func(b *domain.Banner) {
		switch c {
		case domain.CounterImpressions:
			b.Impressions++
		case domain.CounterClicks:
			b.Clicks++
		}
	})
}

func (s *Store) SetOrder(ctx context.Context, id string, order int, at time.Time) error {
	return s.mutate(id, func(b *domain.Banner) {
		b.Order = order
		b.UpdatedAt = at
	})
}

func (s *Store) mutate(id string, fn func(*domain.Banner)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banners[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&b)
	s.banners[id] = b
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.Banner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.banners[id]
	if !ok {
		return domain.Banner{}, domain.ErrNotFound
	}
	return clone(b), nil
}

func (s *Store) List(ctx context.Context, f domain.BannerFilter, pg domain.PageQuery) ([]domain.Banner, int, error) {
	matched := s.filter(f.Matches)
	total := len(matched)
	off := pg.Offset()
	if off >= total {
		return []domain.Banner{}, total, nil
	}
	end := total
	if pg.Limit > 0 && off+pg.Limit < total {
		end = off + pg.Limit
	}
	return matched[off:end], total, nil
}

func (s *Store) Active(ctx context.Context, l domain.Location, now time.Time) ([]domain.Banner, error) {
	return s.filter(func(b domain.Banner) bool { return b.EligibleAt(l, now) }), nil
}

func (s *Store) filter(keep func(domain.Banner) bool) []domain.Banner {
	s.mu.RLock()
	out := make([]domain.Banner, 0, len(s.banners))
	for _, b := range s.banners {
		if keep(b) {
			out = append(out, clone(b))
		}
	}
	s.mu.RUnlock()
	domain.SortForDisplay(out)
	return out
}

// clone detaches slices and pointers so callers never alias stored state.
func clone(b domain.Banner) domain.Banner {
	if b.Locations != nil {
		b.Locations = append([]domain.Location(nil), b.Locations...)
	}
	if b.EndDate != nil {
		end := *b.EndDate
		b.EndDate = &end
	}
	return b
}
