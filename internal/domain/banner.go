package domain

import (
	"math"
	"sort"
	"strconv"
	"time"
)

type Category string

const (
	CategoryHero          Category = "hero"
	CategoryPromotional   Category = "promotional"
	CategoryInformational Category = "informational"
	CategoryFeatured      Category = "featured"
)

type Audience string

const (
	AudienceAll           Audience = "all"
	AudienceNewUsers      Audience = "new_users"
	AudienceExistingUsers Audience = "existing_users"
	AudiencePremiumUsers  Audience = "premium_users"
)

type Location string

const (
	LocationHome           Location = "home"
	LocationSearch         Location = "search"
	LocationPropertyDetail Location = "property_detail"
	LocationBooking        Location = "booking"
	LocationProfile        Location = "profile"
)

var (
	Categories = []Category{CategoryHero, CategoryPromotional, CategoryInformational, CategoryFeatured}
	Audiences  = []Audience{AudienceAll, AudienceNewUsers, AudienceExistingUsers, AudiencePremiumUsers}
	Locations  = []Location{LocationHome, LocationSearch, LocationPropertyDetail, LocationBooking, LocationProfile}
)

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

func (a Audience) Valid() bool {
	for _, v := range Audiences {
		if v == a {
			return true
		}
	}
	return false
}

func (l Location) Valid() bool {
	for _, v := range Locations {
		if v == l {
			return true
		}
	}
	return false
}

// Banner is a promotional slot rendered on one or more surfaces of the site.
type Banner struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Image          string     `json:"image"`
	Link           string     `json:"link,omitempty"`
	IsActive       bool       `json:"isActive"`
	Order          int        `json:"order"`
	Category       Category   `json:"category"`
	TargetAudience Audience   `json:"targetAudience"`
	Locations      []Location `json:"displayLocation"`
	StartDate      time.Time  `json:"startDate"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	Impressions    int64      `json:"impressions"`
	Clicks         int64      `json:"clicks"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CTR is clicks per impression as a percentage, rounded to two decimals.
func (b Banner) CTR() float64 {
	if b.Impressions <= 0 {
		return 0
	}
	v := float64(b.Clicks) / float64(b.Impressions) * 100
	return math.Round(v*100) / 100
}

func FormatCTR(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func (b Banner) HasLocation(l Location) bool {
	for _, v := range b.Locations {
		if v == l {
			return true
		}
	}
	return false
}

// EligibleAt reports whether the banner should be rendered on l at now.
// The window is inclusive on both ends; a nil EndDate is open-ended.
func (b Banner) EligibleAt(l Location, now time.Time) bool {
	if !b.IsActive || !b.HasLocation(l) {
		return false
	}
	if now.Before(b.StartDate) {
		return false
	}
	if b.EndDate != nil && now.After(*b.EndDate) {
		return false
	}
	return true
}

// NormalizeLocations drops duplicates keeping first-seen order; empty input
// falls back to the home page.
func NormalizeLocations(in []Location) []Location {
	if len(in) == 0 {
		return []Location{LocationHome}
	}
	seen := make(map[Location]struct{}, len(in))
	out := make([]Location, 0, len(in))
	for _, l := range in {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// SortForDisplay orders by ascending Order, newest first among equals.
func SortForDisplay(bs []Banner) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Order != bs[j].Order {
			return bs[i].Order < bs[j].Order
		}
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.After(bs[j].CreatedAt)
		}
		return bs[i].ID < bs[j].ID
	})
}

func ActivationState(active bool) string {
	if active {
		return "activated"
	}
	return "deactivated"
}

// DaysActive counts started days since createdAt, rounding up.
func DaysActive(createdAt, now time.Time) int {
	d := now.Sub(createdAt)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

type Analytics struct {
	BannerID    string    `json:"bannerId"`
	Title       string    `json:"title"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	CTR         string    `json:"ctr"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	DaysActive  int       `json:"daysActive"`
}
