package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used for great-circle distances.
	EarthRadiusKm = 6371.0
	// KmPerDegreeLat approximates the north-south length of one degree.
	KmPerDegreeLat = 111.0
)

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox is a rectangular prefilter around a search center.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// BoundingBoxAround returns a box that contains every point within radiusKm of center.
// The longitude span widens with latitude; near the poles it covers every meridian.
func BoundingBoxAround(center Point, radiusKm float64) BoundingBox {
	dLat := radiusKm / KmPerDegreeLat
	box := BoundingBox{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLng: -180,
		MaxLng: 180,
	}

	cosLat := math.Cos(toRadians(center.Lat))
	if cosLat > 1e-9 {
		dLng := radiusKm / (KmPerDegreeLat * cosLat)
		if dLng < 180 {
			box.MinLng = center.Lng - dLng
			box.MaxLng = center.Lng + dLng
		}
	}
	return box
}

// Within reports whether p lies within radiusKm of center. A point exactly on the
// boundary is inside.
func Within(center, p Point, radiusKm float64) (float64, bool) {
	d := HaversineKm(center, p)
	return d, d <= radiusKm
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
