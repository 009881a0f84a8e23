package rag

import (
	"math"
	"testing"
)

func TestConfidenceEmpty(t *testing.T) {
	if got := Confidence(nil); got != 0 {
		t.Errorf("Confidence(nil) = %v, want 0", got)
	}
	if got := Confidence([]float64{}); got != 0 {
		t.Errorf("Confidence(empty) = %v, want 0", got)
	}
}

func TestConfidenceKnownValues(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{
			// avg 0.5, variance 0, count term 1/5
			name:   "single mid score",
			scores: []float64{0.5},
			want:   0.7*0.5 + 0.2*1.0 + 0.1*0.2,
		},
		{
			// avg 0.8, variance 0.02/3, count term 3/5
			name:   "tight high scores",
			scores: []float64{0.9, 0.8, 0.7},
			want:   0.7*0.8 + 0.2*(1-0.02/3.0) + 0.1*0.6,
		},
		{
			// five results saturate the count term
			name:   "count term saturates",
			scores: []float64{0.6, 0.6, 0.6, 0.6, 0.6},
			want:   0.7*0.6 + 0.2*1.0 + 0.1*1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.scores)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Confidence(%v) = %v, want %v", tt.scores, got, tt.want)
			}
		})
	}
}

func TestConfidenceClamped(t *testing.T) {
	if got := Confidence([]float64{3, 3, 3, 3, 3}); got != 1 {
		t.Errorf("Confidence(inflated scores) = %v, want clamp to 1", got)
	}
	if got := Confidence([]float64{-1, -1}); got != 0 {
		t.Errorf("Confidence(negative scores) = %v, want clamp to 0", got)
	}
}

func TestConfidenceStaysInUnitRange(t *testing.T) {
	cases := [][]float64{
		{0},
		{1},
		{0, 1},
		{0.1, 0.9, 0.5},
		{0.33, 0.33, 0.33, 0.33, 0.33, 0.33, 0.33},
	}
	for _, scores := range cases {
		got := Confidence(scores)
		if got < 0 || got > 1 {
			t.Errorf("Confidence(%v) = %v, out of [0,1]", scores, got)
		}
	}
}

func TestConfidenceRewardsAgreement(t *testing.T) {
	tight := Confidence([]float64{0.8, 0.8, 0.8})
	spread := Confidence([]float64{1.0, 0.8, 0.6})
	if tight <= spread {
		t.Errorf("tight scores %v <= spread scores %v, want variance to penalize spread", tight, spread)
	}
}

func TestConfidenceMoreResultsRaiseIt(t *testing.T) {
	one := Confidence([]float64{0.7})
	five := Confidence([]float64{0.7, 0.7, 0.7, 0.7, 0.7})
	if five <= one {
		t.Errorf("five results %v <= one result %v, want count term to reward volume", five, one)
	}
}
