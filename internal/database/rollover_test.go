package database

import (
	"testing"
	"time"
)

func TestRecordDate(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{
			name: "midday in korea",
			at:   time.Date(2026, 3, 10, 14, 30, 0, 0, KST),
			want: "2026-03-10",
		},
		{
			name: "one second before korean midnight",
			at:   time.Date(2026, 3, 10, 23, 59, 59, 0, KST),
			want: "2026-03-10",
		},
		{
			name: "korean midnight starts the next day",
			at:   time.Date(2026, 3, 11, 0, 0, 0, 0, KST),
			want: "2026-03-11",
		},
		{
			// 18:00 UTC on the 10th is 03:00 KST on the 11th; the server
			// zone never decides the record date.
			name: "utc evening falls on the next korean day",
			at:   time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC),
			want: "2026-03-11",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecordDate(tt.at.Unix()); got != tt.want {
				t.Errorf("RecordDate(%v) = %s, want %s", tt.at, got, tt.want)
			}
		})
	}
}
