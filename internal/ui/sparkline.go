package ui

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the trailing width samples of data as Unicode block
// characters scaled against the largest sample in the window. Shorter
// inputs are left-padded with the empty block so the line stays a fixed
// width while the history fills.
func Sparkline(data []float64, width int) string {
	if width <= 0 {
		return ""
	}

	window := make([]float64, width)
	if n := len(data); n >= width {
		copy(window, data[n-width:])
	} else {
		copy(window[width-n:], data)
	}

	var peak float64
	for _, v := range window {
		if v > peak {
			peak = v
		}
	}

	line := make([]rune, width)
	for i, v := range window {
		line[i] = sparkBlock(v, peak)
	}
	return string(line)
}

func sparkBlock(v, peak float64) rune {
	if peak <= 0 || v <= 0 {
		return sparkBlocks[0]
	}
	idx := int(v / peak * float64(len(sparkBlocks)-1))
	if idx >= len(sparkBlocks) {
		idx = len(sparkBlocks) - 1
	}
	return sparkBlocks[idx]
}
