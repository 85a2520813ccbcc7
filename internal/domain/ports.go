package domain

import (
	"context"
	"time"
)

type Counter string

const (
	CounterImpressions Counter = "impressions"
	CounterClicks      Counter = "clicks"
)

type BannerRepository interface {
	// Write paths
	Create(ctx context.Context, b Banner) error
	// Update writes only the fields p supplies, in one atomic step.
	Update(ctx context.Context, id string, p BannerPatch) error
	Delete(ctx context.Context, id string) error
	ToggleActive(ctx context.Context, id string, at time.Time) error
	Increment(ctx context.Context, id string, c Counter) error
	SetOrder(ctx context.Context, id string, order int, at time.Time) error

	// Read paths
	Get(ctx context.Context, id string) (Banner, error)
	List(ctx context.Context, f BannerFilter, pg PageQuery) ([]Banner, int, error)
	Active(ctx context.Context, l Location, now time.Time) ([]Banner, error)
}

// BannerFilter is a conjunction; nil fields do not restrict.
type BannerFilter struct {
	IsActive       *bool
	Category       *Category
	TargetAudience *Audience
	Location       *Location
	StartFrom      *time.Time
	StartTo        *time.Time
}

func (f BannerFilter) Matches(b Banner) bool {
	if f.IsActive != nil && b.IsActive != *f.IsActive {
		return false
	}
	if f.Category != nil && b.Category != *f.Category {
		return false
	}
	if f.TargetAudience != nil && b.TargetAudience != *f.TargetAudience {
		return false
	}
	if f.Location != nil && !b.HasLocation(*f.Location) {
		return false
	}
	if f.StartFrom != nil && b.StartDate.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && b.StartDate.After(*f.StartTo) {
		return false
	}
	return true
}

type PageQuery struct {
	Page  int
	Limit int
}

func (p PageQuery) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type BannersPage struct {
	Items      []Banner   `json:"banners"`
	Pagination Pagination `json:"pagination"`
}

// OrderUpdate is one entry of a reorder batch.
type OrderUpdate struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// BannerPatch is a field-level update. Nil fields keep their stored value;
// ClearEndDate removes the expiration and wins over EndDate.
type BannerPatch struct {
	Title          *string
	Description    *string
	Image          *string
	Link           *string
	IsActive       *bool
	Order          *int
	Category       *Category
	TargetAudience *Audience
	Locations      []Location
	StartDate      *time.Time
	EndDate        *time.Time
	ClearEndDate   bool
	UpdatedAt      time.Time
}

func (p BannerPatch) Apply(b *Banner) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Image != nil {
		b.Image = *p.Image
	}
	if p.Link != nil {
		b.Link = *p.Link
	}
	if p.IsActive != nil {
		b.IsActive = *p.IsActive
	}
	if p.Order != nil {
		b.Order = *p.Order
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.TargetAudience != nil {
		b.TargetAudience = *p.TargetAudience
	}
	if p.Locations != nil {
		b.Locations = append([]Location(nil), p.Locations...)
	}
	if p.StartDate != nil {
		b.StartDate = *p.StartDate
	}
	switch {
	case p.ClearEndDate:
		b.EndDate = nil
	case p.EndDate != nil:
		end := *p.EndDate
		b.EndDate = &end
	}
	b.UpdatedAt = p.UpdatedAt
}
