package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rental_api/internal/adapters/observability"
	"rental_api/internal/domain"
)

func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func observe(op string, start time.Time, err *error) {
	observability.ObserveStore(op, *err, time.Since(start))
}

func (r *Repo) Create(ctx context.Context, b domain.Banner) (err error) {
	defer observe("create", time.Now(), &err)
	locs, err := json.Marshal(b.Locations)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertBannerSQL,
		b.ID,
		b.Title,
		b.Description,
		b.Image,
		b.Link,
		b.IsActive,
		b.Order,
		string(b.Category),
		string(b.TargetAudience),
		string(locs),
		b.StartDate.UTC(),
		valTime(b.EndDate),
		b.CreatedBy,
		b.CreatedAt.UTC(),
		b.UpdatedAt.UTC(),
	)
	return err
}

func (r *Repo) Update(ctx context.Context, id string, p domain.BannerPatch) (err error) {
	defer observe("update", time.Now(), &err)
	set, args, err := setClause(p)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, "UPDATE banners SET "+set+" WHERE id = ?", append(args, id)...)
	return r.affected(ctx, res, err, id)
}

func (r *Repo) Delete(ctx context.Context, id string) (err error) {
	defer observe("delete", time.Now(), &err)
	res, err := r.db.ExecContext(ctx, deleteBannerSQL, id)
	return mustAffect(res, err)
}

func (r *Repo) ToggleActive(ctx context.Context, id string, at time.Time) (err error) {
	defer observe("toggle", time.Now(), &err)
	res, err := r.db.ExecContext(ctx, toggleActiveSQL, at.UTC(), id)
	return mustAffect(res, err)
}

func (r *Repo) Increment(ctx context.Context, id string, c domain.Counter) (err error) {
	defer observe("increment", time.Now(), &err)
	var q string
	switch c {
	case domain.CounterImpressions:
		q = incrImpressionsSQL
	case domain.CounterClicks:
		q = incrClicksSQL
	default:
		return fmt.Errorf("unknown counter %q", c)
	}
	res, err := r.db.ExecContext(ctx, q, id)
	return mustAffect(res, err)
}

func (r *Repo) SetOrder(ctx context.Context, id string, order int, at time.Time) (err error) {
	defer observe("set_order", time.Now(), &err)
	res, err := r.db.ExecContext(ctx, setOrderSQL, order, at.UTC(), id)
	return r.affected(ctx, res, err, id)
}

// mustAffect is for statements that always change a matching row.
func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// affected tolerates no-op updates: MySQL reports changed rows, not matched
// rows, so zero needs an existence check.
func (r *Repo) affected(ctx context.Context, res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	if err := r.db.QueryRowContext(ctx, existsSQL, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (b domain.Banner, err error) {
	defer observe("get", time.Now(), &err)
	b, err = scanBanner(r.db.QueryRowContext(ctx, getBannerSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Banner{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) List(ctx context.Context, f domain.BannerFilter, pg domain.PageQuery) (out []domain.Banner, total int, err error) {
	defer observe("list", time.Now(), &err)
	where, args := whereClause(f)

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM banners"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Banner{}, 0, nil
	}

	q := "SELECT" + bannerColumns + "\nFROM banners" + where + displayOrder + " LIMIT ? OFFSET ?"
	out, err = r.query(ctx, q, append(args, pg.Limit, pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) Active(ctx context.Context, l domain.Location, now time.Time) (out []domain.Banner, err error) {
	defer observe("active", time.Now(), &err)
	now = now.UTC()
	return r.query(ctx, activeBannersSQL, string(l), now, now)
}

func (r *Repo) query(ctx context.Context, q string, args ...any) ([]domain.Banner, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Banner{}
	for rows.Next() {
		b, err := scanBanner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func whereClause(f domain.BannerFilter) (string, []any) {
	var conds []string
	var args []any
	if f.IsActive != nil {
		conds = append(conds, "active = ?")
		args = append(args, *f.IsActive)
	}
	if f.Category != nil {
		conds = append(conds, "category = ?")
		args = append(args, string(*f.Category))
	}
	if f.TargetAudience != nil {
		conds = append(conds, "audience = ?")
		args = append(args, string(*f.TargetAudience))
	}
	if f.Location != nil {
		conds = append(conds, "JSON_CONTAINS(locations, JSON_QUOTE(?))")
		args = append(args, string(*f.Location))
	}
	if f.StartFrom != nil {
		conds = append(conds, "start_at >= ?")
		args = append(args, f.StartFrom.UTC())
	}
	if f.StartTo != nil {
		conds = append(conds, "start_at <= ?")
		args = append(args, f.StartTo.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

// setClause lists only the columns p supplies; counters, creator and
// created_at are never part of it.
func setClause(p domain.BannerPatch) (string, []any, error) {
	var cols []string
	var args []any
	add := func(col string, v any) {
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Image != nil {
		add("image", *p.Image)
	}
	if p.Link != nil {
		add("link", *p.Link)
	}
	if p.IsActive != nil {
		add("active", *p.IsActive)
	}
	if p.Order != nil {
		add("sort_order", *p.Order)
	}
	if p.Category != nil {
		add("category", string(*p.Category))
	}
	if p.TargetAudience != nil {
		add("audience", string(*p.TargetAudience))
	}
	if p.Locations != nil {
		locs, err := json.Marshal(p.Locations)
		if err != nil {
			return "", nil, err
		}
		add("locations", string(locs))
	}
	if p.StartDate != nil {
		add("start_at", p.StartDate.UTC())
	}
	switch {
	case p.ClearEndDate:
		cols = append(cols, "end_at = NULL")
	case p.EndDate != nil:
		add("end_at", p.EndDate.UTC())
	}
	add("updated_at", p.UpdatedAt.UTC())
	return strings.Join(cols, ", "), args, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBanner(s scanner) (domain.Banner, error) {
	var b domain.Banner
	var category, audience string
	var locs []byte
	var end sql.NullTime
	if err := s.Scan(
		&b.ID,
		&b.Title,
		&b.Description,
		&b.Image,
		&b.Link,
		&b.IsActive,
		&b.Order,
		&category,
		&audience,
		&locs,
		&b.StartDate,
		&end,
		&b.Impressions,
		&b.Clicks,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return domain.Banner{}, err
	}
	b.Category = domain.Category(category)
	b.TargetAudience = domain.Audience(audience)
	if err := json.Unmarshal(locs, &b.Locations); err != nil {
		return domain.Banner{}, fmt.Errorf("decode locations of %s: %w", b.ID, err)
	}
	if end.Valid {
		t := end.Time.UTC()
		b.EndDate = &t
	}
	b.StartDate = b.StartDate.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}
