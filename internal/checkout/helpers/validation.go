package helpers

import (
	"strings"

	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
)

const (
	maxInterests      = 5
	maxInterestLength = 32
	maxAge            = 120
)

// Listing carries the client-supplied content of a new ad.
type Listing struct {
	Title          string
	Description    *string
	CallToAction   *string
	DestinationURL *string
	MediaURL       *string
	LocationName   *string
	Latitude       *float64
	Longitude      *float64
	AgeMin         *int
	AgeMax         *int
	Interests      []string
}

// HasMedia reports whether a media attachment was supplied.
func (l Listing) HasMedia() bool {
	return l.MediaURL != nil && strings.TrimSpace(*l.MediaURL) != ""
}

// ValidateListing enforces the cross-field rules the request validator cannot express.
func ValidateListing(l Listing) error {
	if strings.TrimSpace(l.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if (l.Latitude == nil) != (l.Longitude == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "latitude and longitude must be provided together")
	}
	if l.Latitude != nil && (*l.Latitude < -90 || *l.Latitude > 90) {
		return pkgerrors.New(pkgerrors.CodeValidation, "latitude must be between -90 and 90")
	}
	if l.Longitude != nil && (*l.Longitude < -180 || *l.Longitude > 180) {
		return pkgerrors.New(pkgerrors.CodeValidation, "longitude must be between -180 and 180")
	}
	if err := validateAge(l.AgeMin, "age_min"); err != nil {
		return err
	}
	if err := validateAge(l.AgeMax, "age_max"); err != nil {
		return err
	}
	if l.AgeMin != nil && l.AgeMax != nil && *l.AgeMin > *l.AgeMax {
		return pkgerrors.New(pkgerrors.CodeValidation, "age_min must not exceed age_max")
	}
	interests := NormalizeInterests(l.Interests)
	if len(interests) > maxInterests {
		return pkgerrors.New(pkgerrors.CodeValidation, "at most 5 interests are allowed")
	}
	for _, interest := range interests {
		if len(interest) > maxInterestLength {
			return pkgerrors.New(pkgerrors.CodeValidation, "interests must be at most 32 characters")
		}
	}
	return nil
}

func validateAge(value *int, field string) error {
	if value == nil {
		return nil
	}
	if *value < 0 || *value > maxAge {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" must be between 0 and 120")
	}
	return nil
}

// NormalizeInterests trims, lowercases and dedupes interests, dropping blanks.
func NormalizeInterests(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		v := strings.ToLower(strings.TrimSpace(value))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
