package ads

import (
	"strings"
	"time"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/geo"
	"github.com/angelmondragon/adboard-backend/pkg/visibility"
)

// Filters are the structured predicates shared by SQL search and local re-filtering.
type Filters struct {
	AgeMin    *int
	AgeMax    *int
	Interests []string
	Tags      []string
	Center    *geo.Point
	RadiusKm  float64
	// Keyword is a case-insensitive substring match on title and description.
	Keyword string
}

// HasGeo reports whether a radius search was requested.
func (f Filters) HasGeo() bool {
	return f.Center != nil && f.RadiusKm > 0
}

// Normalized lower-cases and trims list filters, dropping empties and duplicates.
func (f Filters) Normalized() Filters {
	out := f
	out.Interests = normalizeTerms(f.Interests)
	out.Tags = normalizeTerms(f.Tags)
	out.Keyword = strings.TrimSpace(f.Keyword)
	return out
}

// Match applies every filter to a loaded ad. The returned distance is only
// meaningful when a geo filter is active.
func (f Filters) Match(ad models.Ad, now time.Time) (float64, bool) {
	if !visibility.IsPublic(ad, now) {
		return 0, false
	}
	if !ageOverlaps(ad.AgeMin, ad.AgeMax, f.AgeMin, f.AgeMax) {
		return 0, false
	}
	if len(f.Interests) > 0 && !intersects(ad.Interests, f.Interests) {
		return 0, false
	}
	if len(f.Tags) > 0 && !intersects(ad.Tags, f.Tags) {
		return 0, false
	}
	if f.Keyword != "" && !containsKeyword(ad, f.Keyword) {
		return 0, false
	}
	if !f.HasGeo() {
		return 0, true
	}
	if !ad.HasGeo() {
		return 0, false
	}
	return geo.Within(*f.Center, geo.Point{Lat: *ad.Latitude, Lng: *ad.Longitude}, f.RadiusKm)
}

// ageOverlaps treats a missing bound on either side as unrestricted.
func ageOverlaps(adMin, adMax, wantMin, wantMax *int) bool {
	if adMin != nil && wantMax != nil && *adMin > *wantMax {
		return false
	}
	if adMax != nil && wantMin != nil && *adMax < *wantMin {
		return false
	}
	return true
}

func intersects(have []string, want []string) bool {
	for _, h := range have {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func containsKeyword(ad models.Ad, keyword string) bool {
	needle := strings.ToLower(keyword)
	if strings.Contains(strings.ToLower(ad.Title), needle) {
		return true
	}
	return ad.Description != nil && strings.Contains(strings.ToLower(*ad.Description), needle)
}

func normalizeTerms(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
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
