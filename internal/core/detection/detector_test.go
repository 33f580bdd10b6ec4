package detection

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	timeout := 30 * time.Minute

	tests := []struct {
		name   string
		sample Sample
		want   string
	}{
		{
			name:   "running within timeout",
			sample: Sample{PID: 100, Status: "running", SpawnedAt: now.Add(-10 * time.Minute)},
			want:   HealthRunning,
		},
		{
			name:   "running past timeout",
			sample: Sample{PID: 101, Status: "running", SpawnedAt: now.Add(-2 * time.Hour)},
			want:   HealthHung,
		},
		{
			name:   "spawned past timeout",
			sample: Sample{PID: 102, Status: "spawned", SpawnedAt: now.Add(-45 * time.Minute)},
			want:   HealthHung,
		},
		{
			name:   "completed never hung",
			sample: Sample{PID: 103, Status: "completed", SpawnedAt: now.Add(-2 * time.Hour)},
			want:   HealthFinished,
		},
		{
			name:   "failed is finished",
			sample: Sample{PID: 104, Status: "failed", SpawnedAt: now.Add(-2 * time.Hour)},
			want:   HealthFinished,
		},
		{
			name:   "killed is finished",
			sample: Sample{PID: 105, Status: "killed", SpawnedAt: now.Add(-2 * time.Hour)},
			want:   HealthFinished,
		},
		{
			name:   "unrecognized status",
			sample: Sample{PID: 106, Status: "paused", SpawnedAt: now.Add(-2 * time.Hour)},
			want:   HealthUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.sample, timeout, now); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_ZeroTimeoutDisablesHangDetection(t *testing.T) {
	now := time.Now()
	s := Sample{PID: 1, Status: "running", SpawnedAt: now.Add(-100 * time.Hour)}

	if got := Classify(s, 0, now); got != HealthRunning {
		t.Errorf("zero timeout should disable hang classification, got %s", got)
	}
}

func TestAge_PrefersStartedAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := Sample{
		Status:    "running",
		SpawnedAt: now.Add(-time.Hour),
		StartedAt: now.Add(-10 * time.Minute),
	}

	if got := Age(s, now); got != 10*time.Minute {
		t.Errorf("age should measure from startup confirmation, got %s", got)
	}

	s.StartedAt = time.Time{}
	if got := Age(s, now); got != time.Hour {
		t.Errorf("age should fall back to spawn time, got %s", got)
	}
}

func TestFilterHung(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := []Sample{
		{PID: 1, Status: "running", SpawnedAt: now.Add(-2 * time.Hour)},
		{PID: 2, Status: "running", SpawnedAt: now.Add(-5 * time.Minute)},
		{PID: 3, Status: "completed", SpawnedAt: now.Add(-3 * time.Hour)},
		{PID: 4, Status: "spawned", SpawnedAt: now.Add(-90 * time.Minute)},
	}

	hung := FilterHung(samples, 30*time.Minute, now)
	if len(hung) != 2 {
		t.Fatalf("expected 2 hung samples, got %d", len(hung))
	}
	if hung[0].PID != 1 || hung[1].PID != 4 {
		t.Errorf("expected PIDs 1 and 4 in input order, got %d and %d", hung[0].PID, hung[1].PID)
	}
}
