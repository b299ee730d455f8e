package core

import (
	"math"
	"testing"
)

func TestGreatCircleKmQuarterMeridian(t *testing.T) {
	got := GreatCircleKm(0, 0, 90, 0)
	want := math.Pi / 2 * EarthRadiusKm
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("GreatCircleKm = %v, want %v", got, want)
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	cases := []struct {
		lat, lon, bearing, km float64
	}{
		{0, 140, 90, 2},
		{-33.9, 151.2, 0, 5},
		{60, -179.999, 90, 10},
		{45, 10, 225, 123.4},
	}
	for _, tc := range cases {
		lat, lon := Destination(tc.lat, tc.lon, tc.bearing, tc.km)
		if got := GreatCircleKm(tc.lat, tc.lon, lat, lon); math.Abs(got-tc.km) > 1e-6 {
			t.Fatalf("Destination(%v,%v,%v,%v) is %v km away, want %v", tc.lat, tc.lon, tc.bearing, tc.km, got, tc.km)
		}
		if lon < -180 || lon > 180 {
			t.Fatalf("longitude %v not wrapped", lon)
		}
	}
}

func TestAngleFromKm(t *testing.T) {
	if got := AngleFromKm(EarthRadiusKm).Radians(); math.Abs(got-1) > 1e-12 {
		t.Fatalf("AngleFromKm(R) = %v rad, want 1", got)
	}
}

func TestClip(t *testing.T) {
	for _, tc := range []struct{ in, want float64 }{
		{1 + 1e-15, 1}, {-1 - 1e-15, -1}, {0.5, 0.5},
	} {
		if got := clip(tc.in); got != tc.want {
			t.Fatalf("clip(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
