package quality

import "testing"

func TestScoreBounds(t *testing.T) {
	if got := Score(0, 0, 0); got != 50 {
		t.Errorf("Score(0,0,0) = %d, want 50", got)
	}
	if got := Score(10, 1000, 1.0); got != 100 {
		t.Errorf("Score(10,1000,1) = %d, want 100", got)
	}
}

func TestScoreBonuses(t *testing.T) {
	tests := []struct {
		name   string
		items  int
		length float64
		ratio  float64
		want   int
	}{
		{"one item", 1, 0, 0, 55},
		{"five items", 5, 0, 0, 60},
		{"short content", 0, 199, 0, 50},
		{"medium content", 0, 200, 0, 60},
		{"long content", 0, 500, 0, 70},
		{"full content", 0, 1000, 0, 80},
		{"few images", 0, 0, 0.1, 55},
		{"some images", 0, 0, 0.3, 60},
		{"half images", 0, 0, 0.5, 65},
		{"most images", 0, 0, 0.8, 70},
		{"mixed", 5, 500, 0.5, 95},
		{"capped", 12, 5000, 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.items, tt.length, tt.ratio); got != tt.want {
				t.Errorf("Score(%d, %v, %v) = %d, want %d", tt.items, tt.length, tt.ratio, got, tt.want)
			}
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	counts := []int{0, 1, 4, 5, 9, 10, 50}
	lengths := []float64{0, 100, 200, 499, 500, 999, 1000, 4000}
	ratios := []float64{0, 0.01, 0.29, 0.3, 0.49, 0.5, 0.79, 0.8, 1}

	for _, l := range lengths {
		for _, r := range ratios {
			prev := -1
			for _, c := range counts {
				s := Score(c, l, r)
				if s < prev {
					t.Fatalf("score decreased with item count at (%d,%v,%v)", c, l, r)
				}
				if s < 0 || s > MaxScore {
					t.Fatalf("score %d out of range", s)
				}
				prev = s
			}
		}
	}

	for _, c := range counts {
		for _, r := range ratios {
			prev := -1
			for _, l := range lengths {
				s := Score(c, l, r)
				if s < prev {
					t.Fatalf("score decreased with content length at (%d,%v,%v)", c, l, r)
				}
				prev = s
			}
		}
	}

	for _, c := range counts {
		for _, l := range lengths {
			prev := -1
			for _, r := range ratios {
				s := Score(c, l, r)
				if s < prev {
					t.Fatalf("score decreased with image ratio at (%d,%v,%v)", c, l, r)
				}
				prev = s
			}
		}
	}
}
