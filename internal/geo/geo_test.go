package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Position
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         Position{Lat: 37.5665, Lng: 126.9780},
			b:         Position{Lat: 37.5665, Lng: 126.9780},
			wantKm:    0,
			tolerance: 0.0001,
		},
		{
			name:      "seoul city hall to gangnam station",
			a:         Position{Lat: 37.5665, Lng: 126.9780},
			b:         Position{Lat: 37.4979, Lng: 127.0276},
			wantKm:    8.8,
			tolerance: 0.3,
		},
		{
			name:      "seoul to busan",
			a:         Position{Lat: 37.5665, Lng: 126.9780},
			b:         Position{Lat: 35.1796, Lng: 129.0756},
			wantKm:    325,
			tolerance: 5,
		},
		{
			name:      "one degree of latitude",
			a:         Position{Lat: 0, Lng: 0},
			b:         Position{Lat: 1, Lng: 0},
			wantKm:    111.19,
			tolerance: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %.4f km, want %.4f ± %.4f", got, tt.wantKm, tt.tolerance)
			}
			// Haversine is symmetric.
			if rev := DistanceKm(tt.b, tt.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("DistanceKm() not symmetric: %.9f vs %.9f", got, rev)
			}
		})
	}
}

func TestSpeedKmh(t *testing.T) {
	// Two fixes roughly 111.19m apart (0.001 degrees of latitude).
	from := Position{Lat: 37.5000, Lng: 127.0000}
	to := Position{Lat: 37.5010, Lng: 127.0000}

	t.Run("covers distance over elapsed time", func(t *testing.T) {
		// ~111m in 10s is ~40 km/h.
		got := SpeedKmh(from, to, 10)
		if math.Abs(got-40.0) > 0.5 {
			t.Errorf("SpeedKmh() = %.2f, want ~40", got)
		}
	})

	t.Run("zero elapsed time yields zero", func(t *testing.T) {
		if got := SpeedKmh(from, to, 0); got != 0 {
			t.Errorf("SpeedKmh() = %.2f, want 0", got)
		}
	})

	t.Run("negative elapsed time yields zero", func(t *testing.T) {
		if got := SpeedKmh(from, to, -5); got != 0 {
			t.Errorf("SpeedKmh() = %.2f, want 0", got)
		}
	})

	t.Run("stationary fixes yield zero", func(t *testing.T) {
		if got := SpeedKmh(from, from, 10); got != 0 {
			t.Errorf("SpeedKmh() = %.2f, want 0", got)
		}
	})
}

func TestPositionIsZero(t *testing.T) {
	if !(Position{}).IsZero() {
		t.Error("zero value should report IsZero")
	}
	if (Position{Lat: 37.5, Lng: 127.0}).IsZero() {
		t.Error("real fix should not report IsZero")
	}
}
