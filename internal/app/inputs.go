package app

import (
	"encoding/json"
	"fmt"

	"rental_api/internal/domain"
)

// LocationList accepts either a single location string or an array of them.
type LocationList []domain.Location

func (l *LocationList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = LocationList{domain.Location(one)}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("displayLocation must be a string or an array of strings")
	}
	out := make(LocationList, 0, len(many))
	for _, s := range many {
		out = append(out, domain.Location(s))
	}
	*l = out
	return nil
}

type CreateBannerInput struct {
	Title           string       `json:"title" validate:"required,max=100"`
	Description     string       `json:"description" validate:"max=500"`
	Image           string       `json:"image" validate:"required,max=1024"`
	Link            string       `json:"link" validate:"omitempty,max=2048,link"`
	IsActive        *bool        `json:"isActive"`
	Order           *int         `json:"order" validate:"omitnil,min=0,max=4294967295"`
	Category        string       `json:"category" validate:"omitempty,oneof=hero promotional informational featured"`
	TargetAudience  string       `json:"targetAudience" validate:"omitempty,oneof=all new_users existing_users premium_users"`
	DisplayLocation LocationList `json:"displayLocation" validate:"omitempty,dive,oneof=home search property_detail booking profile"`
	StartDate       *string      `json:"startDate" validate:"omitnil,isodate"`
	EndDate         *string      `json:"endDate" validate:"omitnil,isodate"`
}

// UpdateBannerInput leaves a field untouched when it is nil. An empty
// endDate clears the expiration.
type UpdateBannerInput struct {
	Title           *string      `json:"title" validate:"omitnil,min=1,max=100"`
	Description     *string      `json:"description" validate:"omitnil,max=500"`
	Image           *string      `json:"image" validate:"omitnil,min=1,max=1024"`
	Link            *string      `json:"link" validate:"omitempty,max=2048,link"`
	IsActive        *bool        `json:"isActive"`
	Order           *int         `json:"order" validate:"omitnil,min=0,max=4294967295"`
	Category        *string      `json:"category" validate:"omitnil,oneof=hero promotional informational featured"`
	TargetAudience  *string      `json:"targetAudience" validate:"omitnil,oneof=all new_users existing_users premium_users"`
	DisplayLocation LocationList `json:"displayLocation" validate:"omitempty,dive,oneof=home search property_detail booking profile"`
	StartDate       *string      `json:"startDate" validate:"omitnil,isodate"`
	EndDate         *string      `json:"endDate" validate:"omitnil,isodate"`
}
