package vectorindex

import (
	"strings"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
)

// DocumentText is the text embedded for an ad. Queries are embedded with the same model.
func DocumentText(ad models.Ad) string {
	parts := []string{strings.TrimSpace(ad.Title)}
	appendIf := func(v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			parts = append(parts, strings.TrimSpace(*v))
		}
	}
	appendIf(ad.Description)
	appendIf(ad.LocationName)
	if len(ad.Interests) > 0 {
		parts = append(parts, strings.Join(ad.Interests, ", "))
	}
	appendIf(ad.CallToAction)
	if len(ad.Tags) > 0 {
		parts = append(parts, strings.Join(ad.Tags, ", "))
	}
	return strings.Join(parts, "\n")
}

// Metadata is stored next to the vector for index-side filtering.
func Metadata(ad models.Ad) map[string]any {
	meta := map[string]any{
		"visible":    ad.Visible,
		"expires_at": ad.ExpiresAt.Unix(),
		"score":      ad.ModerationScore,
		"tags":       strings.Join(ad.Tags, ","),
		"interests":  strings.Join(ad.Interests, ","),
	}
	if ad.AgeMin != nil {
		meta["age_min"] = *ad.AgeMin
	}
	if ad.AgeMax != nil {
		meta["age_max"] = *ad.AgeMax
	}
	if ad.HasGeo() {
		meta["lat"] = *ad.Latitude
		meta["lng"] = *ad.Longitude
	}
	return meta
}
