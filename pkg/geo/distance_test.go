package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistance(t *testing.T) {
	paris := Point{Lat: 48.8566, Lng: 2.3522}
	london := Point{Lat: 51.5074, Lng: -0.1278}

	d := HaversineKm(paris, london)
	if math.Abs(d-343.5) > 1.0 {
		t.Fatalf("expected ~343.5km, got %f", d)
	}
	if HaversineKm(paris, paris) != 0 {
		t.Fatalf("distance to self must be zero")
	}
}

func TestWithinIncludesBoundary(t *testing.T) {
	center := Point{Lat: 40.0, Lng: -73.0}
	p := Point{Lat: 40.1, Lng: -73.0}

	d := HaversineKm(center, p)
	if _, ok := Within(center, p, d); !ok {
		t.Fatalf("point exactly at radius must be included")
	}
	if _, ok := Within(center, p, d-0.001); ok {
		t.Fatalf("point beyond radius must be excluded")
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	center := Point{Lat: 45.0, Lng: 10.0}
	box := BoundingBoxAround(center, 50)

	wantLat := 50.0 / KmPerDegreeLat
	if math.Abs((box.MaxLat-center.Lat)-wantLat) > 1e-9 {
		t.Fatalf("unexpected lat span %f", box.MaxLat-center.Lat)
	}
	wantLng := 50.0 / (KmPerDegreeLat * math.Cos(45.0*math.Pi/180))
	if math.Abs((box.MaxLng-center.Lng)-wantLng) > 1e-9 {
		t.Fatalf("unexpected lng span %f", box.MaxLng-center.Lng)
	}
	if box.MinLng >= center.Lng || box.MinLat >= center.Lat {
		t.Fatalf("box must extend on both sides of center")
	}
}

func TestBoundingBoxAtPoleCoversAllLongitudes(t *testing.T) {
	box := BoundingBoxAround(Point{Lat: 90, Lng: 0}, 10)
	if box.MinLng != -180 || box.MaxLng != 180 {
		t.Fatalf("expected full longitude range at pole, got %f..%f", box.MinLng, box.MaxLng)
	}
}
