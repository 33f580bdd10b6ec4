package stats

import "testing"

func TestPercentile_NearestRank(t *testing.T) {
	oneToTen := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	p50 := Percentile(oneToTen, 50)
	if p50 != 5 && p50 != 6 {
		t.Errorf("p50 of 1..10 should be 5 or 6, got %v", p50)
	}

	if p99 := Percentile(oneToTen, 99); p99 != 10 {
		t.Errorf("p99 of 1..10 should be 10, got %v", p99)
	}

	if p100 := Percentile(oneToTen, 100); p100 != 10 {
		t.Errorf("p100 of 1..10 should be 10, got %v", p100)
	}
}

func TestPercentile_UnsortedInput(t *testing.T) {
	values := []float64{9, 1, 7, 3, 5}
	if got := Percentile(values, 50); got != 5 {
		t.Errorf("p50 of shuffled {1,3,5,7,9} should be 5, got %v", got)
	}

	// Input must not be reordered.
	if values[0] != 9 || values[1] != 1 {
		t.Error("Percentile must not mutate its input")
	}
}

func TestPercentile_Edges(t *testing.T) {
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("empty input should yield 0, got %v", got)
	}
	if got := Percentile([]float64{42}, 95); got != 42 {
		t.Errorf("single value should be its own percentile, got %v", got)
	}
	if got := Percentile([]float64{1, 2, 3}, 0); got != 1 {
		t.Errorf("p0 should clamp to the minimum, got %v", got)
	}
	if got := Percentile([]float64{1, 2, 3}, 200); got != 3 {
		t.Errorf("p>100 should clamp to the maximum, got %v", got)
	}
}

func TestBand(t *testing.T) {
	tests := []struct {
		priority int
		want     string
	}{
		{1, BandHigh},
		{3, BandHigh},
		{4, BandNormal},
		{7, BandNormal},
		{8, BandLow},
		{20, BandLow},
	}

	for _, tt := range tests {
		if got := Band(tt.priority); got != tt.want {
			t.Errorf("Band(%d) = %s, want %s", tt.priority, got, tt.want)
		}
	}
}

func TestMean(t *testing.T) {
	if got := Mean([]float64{2, 4, 6}); got != 4 {
		t.Errorf("mean of {2,4,6} should be 4, got %v", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("mean of empty input should be 0, got %v", got)
	}
}
