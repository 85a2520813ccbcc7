package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"rental_api/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	MaxCreatorIDLen       = 64
	MaxOrder        int64 = math.MaxUint32
)

type BannerService struct {
	repo     domain.BannerRepository
	validate *validator.Validate
	now      func() time.Time
	workers  int
}

// NewBannerService wires the service. A nil clock means time.Now; workers
// bounds the concurrent store writes of a reorder batch.
func NewBannerService(r domain.BannerRepository, now func() time.Time, workers int) *BannerService {
	if now == nil {
		now = time.Now
	}
	if workers <= 0 {
		workers = 4
	}
	return &BannerService{repo: r, validate: newValidator(), now: now, workers: workers}
}

func (s *BannerService) clock() time.Time { return s.now().UTC() }

func (s *BannerService) List(ctx context.Context, f domain.BannerFilter, page, limit int) (domain.BannersPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	items, total, err := s.repo.List(ctx, f, domain.PageQuery{Page: page, Limit: limit})
	if err != nil {
		return domain.BannersPage{}, domain.AsStoreError("list", err)
	}
	if items == nil {
		items = []domain.Banner{}
	}
	return domain.BannersPage{
		Items: items,
		Pagination: domain.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

// ActiveFor returns the banners eligible for display on l at now, in display order.
func (s *BannerService) ActiveFor(ctx context.Context, l domain.Location, now time.Time) ([]domain.Banner, error) {
	if !l.Valid() {
		return nil, domain.Invalid("location", "oneof", fmt.Sprintf("unknown display location %q", l))
	}
	out, err := s.repo.Active(ctx, l, now.UTC())
	if err != nil {
		return nil, domain.AsStoreError("active", err)
	}
	if out == nil {
		out = []domain.Banner{}
	}
	return out, nil
}

func (s *BannerService) Get(ctx context.Context, id string) (domain.Banner, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Banner{}, domain.AsStoreError("get", err)
	}
	return b, nil
}

func (s *BannerService) Create(ctx context.Context, in CreateBannerInput, creatorID string) (domain.Banner, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Image = strings.TrimSpace(in.Image)
	if err := s.validate.Struct(in); err != nil {
		return domain.Banner{}, validationError(err)
	}
	if strings.TrimSpace(creatorID) == "" {
		return domain.Banner{}, domain.Invalid("createdBy", "required", "createdBy is required")
	}
	if utf8.RuneCountInString(creatorID) > MaxCreatorIDLen {
		return domain.Banner{}, domain.Invalid("createdBy", "max",
			fmt.Sprintf("createdBy must be at most %d characters", MaxCreatorIDLen))
	}

	now := s.clock()
	b := domain.Banner{
		ID:             uuid.NewString(),
		Title:          in.Title,
		Description:    in.Description,
		Image:          in.Image,
		Link:           in.Link,
		IsActive:       true,
		Category:       domain.CategoryPromotional,
		TargetAudience: domain.AudienceAll,
		Locations:      domain.NormalizeLocations(in.DisplayLocation),
		StartDate:      now,
		CreatedBy:      creatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	if in.Order != nil {
		b.Order = *in.Order
	}
	if in.Category != "" {
		b.Category = domain.Category(in.Category)
	}
	if in.TargetAudience != "" {
		b.TargetAudience = domain.Audience(in.TargetAudience)
	}
	if in.StartDate != nil && *in.StartDate != "" {
		b.StartDate, _ = ParseDate(*in.StartDate)
	}
	if in.EndDate != nil && *in.EndDate != "" {
		end, _ := ParseDate(*in.EndDate)
		b.EndDate = &end
	}

	if err := s.repo.Create(ctx, b); err != nil {
		log.Error().Err(err).Str("banner_id", b.ID).Msg("create banner failed")
		return domain.Banner{}, domain.AsStoreError("create", err)
	}
	log.Info().Str("banner_id", b.ID).Str("actor", creatorID).Msg("banner created")
	return b, nil
}

func (s *BannerService) Update(ctx context.Context, id string, in UpdateBannerInput) (domain.Banner, error) {
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		in.Title = &t
	}
	if in.Image != nil {
		img := strings.TrimSpace(*in.Image)
		in.Image = &img
	}
	if err := s.validate.Struct(in); err != nil {
		return domain.Banner{}, validationError(err)
	}

	p := domain.BannerPatch{
		Title:       in.Title,
		Description: in.Description,
		Image:       in.Image,
		Link:        in.Link,
		IsActive:    in.IsActive,
		Order:       in.Order,
		UpdatedAt:   s.clock(),
	}
	if in.Category != nil {
		c := domain.Category(*in.Category)
		p.Category = &c
	}
	if in.TargetAudience != nil {
		a := domain.Audience(*in.TargetAudience)
		p.TargetAudience = &a
	}
	if in.DisplayLocation != nil {
		p.Locations = domain.NormalizeLocations(in.DisplayLocation)
	}
	if in.StartDate != nil && *in.StartDate != "" {
		start, _ := ParseDate(*in.StartDate)
		p.StartDate = &start
	}
	if in.EndDate != nil {
		if *in.EndDate == "" {
			p.ClearEndDate = true
		} else {
			end, _ := ParseDate(*in.EndDate)
			p.EndDate = &end
		}
	}

	if err := s.repo.Update(ctx, id, p); err != nil {
		return domain.Banner{}, domain.AsStoreError("update", err)
	}
	log.Info().Str("banner_id", id).Msg("banner updated")
	// TODO: release the previous image asset once asset storage exposes a delete hook.
	return s.Get(ctx, id)
}

func (s *BannerService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return domain.AsStoreError("delete", err)
	}
	log.Info().Str("banner_id", id).Msg("banner deleted")
	log.Debug().Str("banner_id", id).Msg("image asset cleanup skipped")
	return nil
}

// ToggleActive flips the active flag and reports the resulting state.
func (s *BannerService) ToggleActive(ctx context.Context, id string) (domain.Banner, string, error) {
	if err := s.repo.ToggleActive(ctx, id, s.clock()); err != nil {
		return domain.Banner{}, "", domain.AsStoreError("toggle", err)
	}
	b, err := s.Get(ctx, id)
	if err != nil {
		return domain.Banner{}, "", err
	}
	state := domain.ActivationState(b.IsActive)
	log.Info().Str("banner_id", id).Str("state", state).Msg("banner toggled")
	return b, state, nil
}

func (s *BannerService) RecordImpression(ctx context.Context, id string) error {
	return s.record(ctx, id, domain.CounterImpressions)
}

func (s *BannerService) RecordClick(ctx context.Context, id string) error {
	return s.record(ctx, id, domain.CounterClicks)
}

func (s *BannerService) record(ctx context.Context, id string, c domain.Counter) error {
	if err := s.repo.Increment(ctx, id, c); err != nil {
		return domain.AsStoreError("increment "+string(c), err)
	}
	return nil
}

func (s *BannerService) Analytics(ctx context.Context, id string) (domain.Analytics, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return domain.Analytics{}, err
	}
	return domain.Analytics{
		BannerID:    b.ID,
		Title:       b.Title,
		Impressions: b.Impressions,
		Clicks:      b.Clicks,
		CTR:         domain.FormatCTR(b.CTR()),
		IsActive:    b.IsActive,
		CreatedAt:   b.CreatedAt,
		DaysActive:  domain.DaysActive(b.CreatedAt, s.clock()),
	}, nil
}

// Reorder applies every order update independently. All issued writes run to
// completion; the first failure is returned and earlier writes stay applied.
func (s *BannerService) Reorder(ctx context.Context, updates []domain.OrderUpdate) error {
	if len(updates) == 0 {
		return domain.Invalid("banners", "required", "banners must contain at least one entry")
	}
	ve := &domain.ValidationError{}
	for i, u := range updates {
		if strings.TrimSpace(u.ID) == "" {
			ve.Fields = append(ve.Fields, domain.FieldViolation{
				Field: fmt.Sprintf("banners[%d].id", i), Rule: "required",
				Message: fmt.Sprintf("banners[%d].id is required", i),
			})
		}
		if u.Order < 0 {
			ve.Fields = append(ve.Fields, domain.FieldViolation{
				Field: fmt.Sprintf("banners[%d].order", i), Rule: "min",
				Message: fmt.Sprintf("banners[%d].order must be at least 0", i),
			})
		}
		if int64(u.Order) > MaxOrder {
			ve.Fields = append(ve.Fields, domain.FieldViolation{
				Field: fmt.Sprintf("banners[%d].order", i), Rule: "max",
				Message: fmt.Sprintf("banners[%d].order must be at most %d", i, MaxOrder),
			})
		}
	}
	if len(ve.Fields) > 0 {
		return ve
	}

	at := s.clock()
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, u := range updates {
		u := u
		g.Go(func() error {
			if err := s.repo.SetOrder(ctx, u.ID, u.Order, at); err != nil {
				return fmt.Errorf("banner %s: %w", u.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Int("batch", len(updates)).Msg("reorder failed")
		}
		return domain.AsStoreError("reorder", err)
	}
	log.Info().Int("batch", len(updates)).Msg("banners reordered")
	return nil
}
