package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rental_api/internal/app"
	"rental_api/internal/domain"
	"rental_api/internal/storage/memory"
)

// ---- fakes ----

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// failingRepo fails SetOrder for selected ids and records every call.
type failingRepo struct {
	*memory.Store
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *failingRepo) SetOrder(ctx context.Context, id string, order int, at time.Time) error {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	fail := f.fail[id]
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.Store.SetOrder(ctx, id, order, at)
}

// racingRepo runs interleave once, on the first Get after it is armed,
// standing in for writers that land while an update is in flight.
type racingRepo struct {
	*memory.Store
	mu         sync.Mutex
	interleave func()
}

func (r *racingRepo) Get(ctx context.Context, id string) (domain.Banner, error) {
	r.mu.Lock()
	fn := r.interleave
	r.interleave = nil
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
	return r.Store.Get(ctx, id)
}

func newService(t *testing.T) (*app.BannerService, *fixedClock) {
	t.Helper()
	clk := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return app.NewBannerService(memory.New(), clk.Now, 4), clk
}

func mustCreate(t *testing.T, s *app.BannerService, in app.CreateBannerInput) domain.Banner {
	t.Helper()
	b, err := s.Create(context.Background(), in, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return b
}

func ptr[T any](v T) *T { return &v }

func isValidation(err error, field string) bool {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	for _, f := range ve.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// ---- tests ----

func TestCreate_Defaults(t *testing.T) {
	s, clk := newService(t)
	b := mustCreate(t, s, app.CreateBannerInput{
		Title:           "Summer Sale",
		Image:           "img1",
		DisplayLocation: app.LocationList{"home", "search"},
	})

	if b.ID == "" || b.CreatedBy != "u1" {
		t.Fatalf("identity not stamped: %+v", b)
	}
	if b.Order != 0 || !b.IsActive || b.TargetAudience != domain.AudienceAll || b.Category != domain.CategoryPromotional {
		t.Fatalf("unexpected defaults: %+v", b)
	}
	if len(b.Locations) != 2 || b.Locations[0] != domain.LocationHome || b.Locations[1] != domain.LocationSearch {
		t.Fatalf("unexpected locations: %v", b.Locations)
	}
	if !b.StartDate.Equal(clk.Now()) || b.EndDate != nil {
		t.Fatalf("unexpected window: %v %v", b.StartDate, b.EndDate)
	}

	noLoc := mustCreate(t, s, app.CreateBannerInput{Title: "x", Image: "i"})
	if len(noLoc.Locations) != 1 || noLoc.Locations[0] != domain.LocationHome {
		t.Fatalf("default location: %v", noLoc.Locations)
	}
}

func TestCreate_Validation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    app.CreateBannerInput
		field string
	}{
		{"title too long", app.CreateBannerInput{Title: strings.Repeat("a", 101), Image: "i"}, "title"},
		{"title blank", app.CreateBannerInput{Title: "   ", Image: "i"}, "title"},
		{"image missing", app.CreateBannerInput{Title: "t"}, "image"},
		{"bad link", app.CreateBannerInput{Title: "t", Image: "i", Link: "not-a-url"}, "link"},
		{"description too long", app.CreateBannerInput{Title: "t", Image: "i", Description: strings.Repeat("d", 501)}, "description"},
		{"negative order", app.CreateBannerInput{Title: "t", Image: "i", Order: ptr(-1)}, "order"},
		{"bad category", app.CreateBannerInput{Title: "t", Image: "i", Category: "popup"}, "category"},
		{"bad audience", app.CreateBannerInput{Title: "t", Image: "i", TargetAudience: "everyone"}, "targetAudience"},
		{"bad location", app.CreateBannerInput{Title: "t", Image: "i", DisplayLocation: app.LocationList{"home", "sidebar"}}, "displayLocation[1]"},
		{"bad start date", app.CreateBannerInput{Title: "t", Image: "i", StartDate: ptr("tomorrow")}, "startDate"},
		{"image too long", app.CreateBannerInput{Title: "t", Image: strings.Repeat("i", 1025)}, "image"},
		{"link too long", app.CreateBannerInput{Title: "t", Image: "i", Link: "https://x.com/" + strings.Repeat("p", 2040)}, "link"},
		{"order too large", app.CreateBannerInput{Title: "t", Image: "i", Order: ptr(int(app.MaxOrder) + 1)}, "order"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := s.Create(ctx, c.in, "u1")
			if !isValidation(err, c.field) {
				t.Fatalf("expected validation error on %s, got %v", c.field, err)
			}
		})
	}

	if _, err := s.Create(ctx, app.CreateBannerInput{Title: strings.Repeat("a", 100), Image: "i", Link: "https://x.com"}, "u1"); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if _, err := s.Create(ctx, app.CreateBannerInput{Title: "t", Image: "i"}, ""); !isValidation(err, "createdBy") {
		t.Fatalf("expected createdBy violation, got %v", err)
	}
	if _, err := s.Create(ctx, app.CreateBannerInput{Title: "t", Image: "i"}, strings.Repeat("u", app.MaxCreatorIDLen+1)); !isValidation(err, "createdBy") {
		t.Fatalf("expected createdBy length violation, got %v", err)
	}
}

func TestCreate_ColumnBoundsAccepted(t *testing.T) {
	s, _ := newService(t)
	in := app.CreateBannerInput{
		Title: "t",
		Image: strings.Repeat("i", 1024),
		Link:  "https://x.com/" + strings.Repeat("p", 2048-len("https://x.com/")),
		Order: ptr(int(app.MaxOrder)),
	}
	if _, err := s.Create(context.Background(), in, strings.Repeat("u", app.MaxCreatorIDLen)); err != nil {
		t.Fatalf("values at the column limits rejected: %v", err)
	}
}

func TestCreate_DateInputs(t *testing.T) {
	s, _ := newService(t)
	b := mustCreate(t, s, app.CreateBannerInput{
		Title: "t", Image: "i",
		StartDate: ptr("2026-04-01"),
		EndDate:   ptr("2026-04-30T23:59:59Z"),
	})
	if !b.StartDate.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start: %v", b.StartDate)
	}
	if b.EndDate == nil || !b.EndDate.Equal(time.Date(2026, 4, 30, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("end: %v", b.EndDate)
	}
}

func TestUpdate(t *testing.T) {
	s, clk := newService(t)
	ctx := context.Background()
	b := mustCreate(t, s, app.CreateBannerInput{Title: "t", Image: "i", EndDate: ptr("2026-12-31")})
	_ = s.RecordClick(ctx, b.ID)
	clk.Advance(time.Hour)

	got, err := s.Update(ctx, b.ID, app.UpdateBannerInput{
		Title:           ptr("New title"),
		DisplayLocation: app.LocationList{"booking"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "New title" || got.Image != "i" {
		t.Fatalf("fields: %+v", got)
	}
	if len(got.Locations) != 1 || got.Locations[0] != domain.LocationBooking {
		t.Fatalf("locations not replaced: %v", got.Locations)
	}
	if !got.StartDate.Equal(b.StartDate) || got.EndDate == nil || !got.EndDate.Equal(*b.EndDate) {
		t.Fatalf("dates must be retained: %v %v", got.StartDate, got.EndDate)
	}
	if got.Clicks != 1 {
		t.Fatalf("update must not reset counters: %d", got.Clicks)
	}
	if !got.UpdatedAt.Equal(clk.Now()) {
		t.Fatalf("updatedAt: %v", got.UpdatedAt)
	}

	got, err = s.Update(ctx, b.ID, app.UpdateBannerInput{EndDate: ptr("")})
	if err != nil || got.EndDate != nil {
		t.Fatalf("clearing endDate: %v %v", got.EndDate, err)
	}

	if _, err := s.Update(ctx, b.ID, app.UpdateBannerInput{Title: ptr(strings.Repeat("a", 101))}); !isValidation(err, "title") {
		t.Fatalf("expected title violation, got %v", err)
	}
	if _, err := s.Update(ctx, b.ID, app.UpdateBannerInput{Image: ptr(strings.Repeat("i", 1025))}); !isValidation(err, "image") {
		t.Fatalf("expected image violation, got %v", err)
	}
	if _, err := s.Update(ctx, b.ID, app.UpdateBannerInput{Order: ptr(int(app.MaxOrder) + 1)}); !isValidation(err, "order") {
		t.Fatalf("expected order violation, got %v", err)
	}
	if _, err := s.Update(ctx, "missing", app.UpdateBannerInput{Title: ptr("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdate_KeepsConcurrentToggleAndOrder(t *testing.T) {
	repo := &racingRepo{Store: memory.New()}
	s := app.NewBannerService(repo, nil, 2)
	ctx := context.Background()
	b := mustCreate(t, s, app.CreateBannerInput{Title: "t", Image: "i"})

	repo.mu.Lock()
	repo.interleave = func() {
		if err := repo.Store.SetOrder(ctx, b.ID, 7, time.Now()); err != nil {
			t.Errorf("SetOrder: %v", err)
		}
		if err := repo.Store.ToggleActive(ctx, b.ID, time.Now()); err != nil {
			t.Errorf("ToggleActive: %v", err)
		}
	}
	repo.mu.Unlock()

	if _, err := s.Update(ctx, b.ID, app.UpdateBannerInput{Title: ptr("renamed")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.Store.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "renamed" || got.Order != 7 || got.IsActive {
		t.Fatalf("concurrent writes lost: title=%q order=%d active=%v", got.Title, got.Order, got.IsActive)
	}
}

func TestUpdate_NullDisplayLocationLeavesField(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	b := mustCreate(t, s, app.CreateBannerInput{Title: "t", Image: "i", DisplayLocation: app.LocationList{"search"}})

	var in app.UpdateBannerInput
	if err := json.Unmarshal([]byte(`{"title":"x","displayLocation":null}`), &in); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.DisplayLocation != nil {
		t.Fatalf("null must decode to no value, got %v", in.DisplayLocation)
	}
	got, err := s.Update(ctx, b.ID, in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got.Locations) != 1 || got.Locations[0] != domain.LocationSearch {
		t.Fatalf("locations changed: %v", got.Locations)
	}
}

func TestToggleActive(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	b := mustCreate(t, s, app.CreateBannerInput{Title: "t", Image: "i"})

	got, state, err := s.ToggleActive(ctx, b.ID)
	if err != nil || got.IsActive || state != "deactivated" {
		t.Fatalf("first toggle: active=%v state=%q err=%v", got.IsActive, state, err)
	}
	got, state, err = s.ToggleActive(ctx, b.ID)
	if err != nil || !got.IsActive || state != "activated" {
		t.Fatalf("second toggle: active=%v state=%q err=%v", got.IsActive, state, err)
	}
	if _, _, err := s.ToggleActive(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnalytics_Example(t *testing.T) {
	s, clk := newService(t)
	ctx := context.Background()
	b := mustCreate(t, s, app.CreateBannerInput{
		Title: "Summer Sale", Image: "img1", DisplayLocation: app.LocationList{"home", "search"},
	})
	for i := 0; i < 5; i++ {
		if err := s.RecordImpression(ctx, b.ID); err != nil {
			t.Fatalf("RecordImpression: %v", err)
		}
	}
	if err := s.RecordClick(ctx, b.ID); err != nil {
		t.Fatalf("RecordClick: %v", err)
	}
	clk.Advance(36 * time.Hour)

	a, err := s.Analytics(ctx, b.ID)
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.Impressions != 5 || a.Clicks != 1 || a.CTR != "20.00" || !a.IsActive {
		t.Fatalf("unexpected analytics: %+v", a)
	}
	if a.DaysActive != 2 {
		t.Fatalf("daysActive = %d, want 2", a.DaysActive)
	}

	fresh := mustCreate(t, s, app.CreateBannerInput{Title: "t", Image: "i"})
	a, _ = s.Analytics(ctx, fresh.ID)
	if a.CTR != "0.00" {
		t.Fatalf("ctr with no impressions = %q", a.CTR)
	}
}

func TestRecordImpression_Concurrent(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	b := mustCreate(t, s, app.CreateBannerInput{Title: "t", Image: "i"})

	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.RecordImpression(ctx, b.ID); err != nil {
				t.Errorf("RecordImpression: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, b.ID)
	if got.Impressions != n {
		t.Fatalf("impressions = %d, want %d", got.Impressions, n)
	}
	if err := s.RecordClick(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteThenGet(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	b := mustCreate(t, s, app.CreateBannerInput{Title: "t", Image: "i"})

	if err := s.Delete(ctx, "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete unknown: %v", err)
	}
	if err := s.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestActiveFor(t *testing.T) {
	s, clk := newService(t)
	ctx := context.Background()
	now := clk.Now()

	visible := mustCreate(t, s, app.CreateBannerInput{Title: "visible", Image: "i", Order: ptr(2)})
	first := mustCreate(t, s, app.CreateBannerInput{Title: "first", Image: "i", Order: ptr(1), DisplayLocation: app.LocationList{"home", "search"}})
	mustCreate(t, s, app.CreateBannerInput{Title: "inactive", Image: "i", IsActive: ptr(false)})
	mustCreate(t, s, app.CreateBannerInput{Title: "search only", Image: "i", DisplayLocation: app.LocationList{"search"}})
	mustCreate(t, s, app.CreateBannerInput{Title: "future", Image: "i", StartDate: ptr("2026-03-02")})
	mustCreate(t, s, app.CreateBannerInput{Title: "expired", Image: "i", StartDate: ptr("2026-01-01"), EndDate: ptr("2026-02-01")})

	got, err := s.ActiveFor(ctx, domain.LocationHome, now)
	if err != nil {
		t.Fatalf("ActiveFor: %v", err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != visible.ID {
		titles := make([]string, 0, len(got))
		for _, b := range got {
			titles = append(titles, b.Title)
		}
		t.Fatalf("unexpected feed: %v", titles)
	}

	later, _ := s.ActiveFor(ctx, domain.LocationHome, now.Add(48*time.Hour))
	if len(later) != 3 {
		t.Fatalf("future banner should become eligible, got %d", len(later))
	}

	if _, err := s.ActiveFor(ctx, "sidebar", now); !isValidation(err, "location") {
		t.Fatalf("expected location violation, got %v", err)
	}
}

func TestList_FiltersAndPaging(t *testing.T) {
	s, clk := newService(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		mustCreate(t, s, app.CreateBannerInput{Title: "b", Image: "i", Order: ptr(i), IsActive: ptr(i < 12)})
		clk.Advance(time.Minute)
	}

	all, err := s.List(ctx, domain.BannerFilter{}, 1, 100)
	if err != nil || all.Pagination.Total != 15 || len(all.Items) != 15 {
		t.Fatalf("unfiltered: %+v %v", all.Pagination, err)
	}

	active := true
	pg, _ := s.List(ctx, domain.BannerFilter{IsActive: &active}, 2, 10)
	if pg.Pagination.Total != 12 || pg.Pagination.TotalPages != 2 || len(pg.Items) != 2 {
		t.Fatalf("active page 2: %+v len=%d", pg.Pagination, len(pg.Items))
	}
	if pg.Items[0].Order != 10 || pg.Items[1].Order != 11 {
		t.Fatalf("page 2 must skip the first 10: %d %d", pg.Items[0].Order, pg.Items[1].Order)
	}

	def, _ := s.List(ctx, domain.BannerFilter{}, 0, 0)
	if def.Pagination.Page != 1 || def.Pagination.Limit != app.DefaultPageSize {
		t.Fatalf("defaults: %+v", def.Pagination)
	}

	cat := domain.CategoryHero
	none, _ := s.List(ctx, domain.BannerFilter{Category: &cat}, 1, 10)
	if none.Items == nil || len(none.Items) != 0 || none.Pagination.TotalPages != 0 {
		t.Fatalf("empty result: %+v", none)
	}
}

func TestReorder(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, app.CreateBannerInput{Title: "a", Image: "i"})
	b := mustCreate(t, s, app.CreateBannerInput{Title: "b", Image: "i"})

	err := s.Reorder(ctx, []domain.OrderUpdate{{ID: a.ID, Order: 5}, {ID: b.ID, Order: 5}})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	ga, _ := s.Get(ctx, a.ID)
	gb, _ := s.Get(ctx, b.ID)
	if ga.Order != 5 || gb.Order != 5 {
		t.Fatalf("duplicate orders must be accepted: %d %d", ga.Order, gb.Order)
	}

	if err := s.Reorder(ctx, []domain.OrderUpdate{{ID: a.ID, Order: -1}}); !isValidation(err, "banners[0].order") {
		t.Fatalf("expected order violation, got %v", err)
	}
	if err := s.Reorder(ctx, nil); !isValidation(err, "banners") {
		t.Fatalf("expected empty batch violation, got %v", err)
	}
	if err := s.Reorder(ctx, []domain.OrderUpdate{{ID: a.ID, Order: 1}, {ID: "missing", Order: 2}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ga, _ = s.Get(ctx, a.ID)
	if ga.Order != 1 {
		t.Fatalf("applied update must not be rolled back: %d", ga.Order)
	}
}

func TestReorder_OrderUpperBound(t *testing.T) {
	s, _ := newService(t)
	b := mustCreate(t, s, app.CreateBannerInput{Title: "t", Image: "i"})
	err := s.Reorder(context.Background(), []domain.OrderUpdate{{ID: b.ID, Order: int(app.MaxOrder) + 1}})
	if !isValidation(err, "banners[0].order") {
		t.Fatalf("expected order violation, got %v", err)
	}
}

func TestReorder_PartialFailureKeepsOthers(t *testing.T) {
	store := memory.New()
	repo := &failingRepo{Store: store, fail: map[string]bool{}}
	s := app.NewBannerService(repo, nil, 2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		b, err := s.Create(ctx, app.CreateBannerInput{Title: "t", Image: "i"}, "u1")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, b.ID)
	}
	repo.fail[ids[2]] = true

	batch := make([]domain.OrderUpdate, 0, len(ids))
	for i, id := range ids {
		batch = append(batch, domain.OrderUpdate{ID: id, Order: 10 + i})
	}
	err := s.Reorder(ctx, batch)
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(repo.calls) != len(ids) {
		t.Fatalf("every update must be issued: %d of %d", len(repo.calls), len(ids))
	}
	for i, id := range ids {
		b, _ := s.Get(ctx, id)
		want := 10 + i
		if i == 2 {
			want = 0
		}
		if b.Order != want {
			t.Fatalf("banner %d order = %d, want %d", i, b.Order, want)
		}
	}
}
