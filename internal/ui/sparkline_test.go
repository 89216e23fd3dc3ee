package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparkline(t *testing.T) {
	tests := []struct {
		name  string
		data  []float64
		width int
		want  string
	}{
		{"all zeros", []float64{0, 0, 0, 0, 0}, 5, "▁▁▁▁▁"},
		{"flat nonzero maps to peak", []float64{5, 5, 5, 5}, 4, "████"},
		{"zero width", []float64{1, 2, 3}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sparkline(tt.data, tt.width))
		})
	}
}

func TestSparklinePadsShortInput(t *testing.T) {
	runes := []rune(Sparkline([]float64{100}, 5))
	assert.Len(t, runes, 5)
	assert.Equal(t, '▁', runes[0], "missing history renders as the empty block")
	assert.Equal(t, '█', runes[4], "the lone sample is its own peak")
}

func TestSparklineScalesAgainstPeak(t *testing.T) {
	runes := []rune(Sparkline([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 8))
	assert.Len(t, runes, 8)
	assert.Equal(t, '▁', runes[0])
	assert.Equal(t, '█', runes[7])
}

func TestSparklineKeepsTrailingWindow(t *testing.T) {
	got := Sparkline([]float64{10, 20, 30, 40, 50}, 3)
	assert.Len(t, []rune(got), 3)
	assert.Equal(t, '█', []rune(got)[2], "last sample is the window peak")
}
