package geo

import (
	"math"
	"testing"
)

func TestDistanceKM_zeroForSamePoint(t *testing.T) {
	if d := DistanceKM(25.0330, 121.5654, 25.0330, 121.5654); d != 0 {
		t.Errorf("distance between identical points should be 0, got %f", d)
	}
}

func TestDistanceKM_oneDegreeAtEquator(t *testing.T) {
	// One degree of longitude at the equator is R * pi/180.
	want := EarthRadiusKM * math.Pi / 180
	got := DistanceKM(0, 0, 0, 1)
	if math.Abs(got-want) > 0.01 {
		t.Errorf("expected ~%f km, got %f", want, got)
	}
}

func TestDistanceKM_taipeiNeighbors(t *testing.T) {
	// The two points from the product scenario are ~0.13 km apart.
	got := DistanceKM(25.0330, 121.5654, 25.0340, 121.5660)
	if got < 0.11 || got > 0.15 {
		t.Errorf("expected ~0.13 km, got %f", got)
	}
}

func TestDistanceKM_deterministicAndSymmetric(t *testing.T) {
	a := DistanceKM(25.0330, 121.5654, 25.0340, 121.5660)
	b := DistanceKM(25.0330, 121.5654, 25.0340, 121.5660)
	if a != b {
		t.Errorf("distance should be deterministic: %v != %v", a, b)
	}
	c := DistanceKM(25.0340, 121.5660, 25.0330, 121.5654)
	if math.Abs(a-c) > 1e-9 {
		t.Errorf("distance should be symmetric: %v != %v", a, c)
	}
}

func TestBoundingBox_strictlyEnclosesRadius(t *testing.T) {
	lat := 25.0330
	dLat, dLon := BoundingBox(lat, 5)

	// The box edges must lie strictly beyond the radius so rounding can
	// never push an exactly-at-radius point outside the prefilter.
	if d := DistanceKM(lat, 121, lat+dLat, 121); d <= 5 {
		t.Errorf("latitude delta too small: edge only %f km away", d)
	}
	if d := DistanceKM(lat, 121, lat, 121+dLon); d <= 5 {
		t.Errorf("longitude delta too small: edge only %f km away", d)
	}
}

func TestBoundingBox_keepsPointAtExactRadius(t *testing.T) {
	lat, lon := 25.0330, 121.5654
	const radius = 5.0
	dLat, dLon := BoundingBox(lat, radius)

	// A point exactly radius km due north sits inside the box.
	northLat := lat + radius/EarthRadiusKM*180/math.Pi
	if northLat > lat+dLat {
		t.Errorf("point at exact radius due north escapes the box: %f > %f", northLat, lat+dLat)
	}
	// And due east at this latitude.
	eastLon := lon + radius/(EarthRadiusKM*math.Cos(lat*math.Pi/180))*180/math.Pi
	if eastLon > lon+dLon {
		t.Errorf("point at exact radius due east escapes the box: %f > %f", eastLon, lon+dLon)
	}
}

func TestBoundingBox_nearPoles(t *testing.T) {
	_, dLon := BoundingBox(89.9, 5)
	if dLon != 180 {
		t.Errorf("near the poles the longitude delta should cover everything, got %f", dLon)
	}
}

func TestValidLatLon(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{25.0330, 121.5654, true},
		{90, 180, true},
		{-90, -180, true},
		{90.1, 0, false},
		{0, 180.1, false},
		{-91, 0, false},
	}
	for _, c := range cases {
		if got := ValidLatLon(c.lat, c.lon); got != c.want {
			t.Errorf("ValidLatLon(%v, %v) = %v, want %v", c.lat, c.lon, got, c.want)
		}
	}
}
