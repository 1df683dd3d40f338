package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
var sparklineBlocks = []rune("▁▂▃▄▅▆▇█")

// RenderSparkline draws the most recent width samples of a series of
// fractions, such as cpu usage where 1.0 is one busy core. Levels are
// scaled from zero to the largest sample, or to 1.0 if every sample is
// below that, so an idle relay draws flat. The line is colored by the
// latest sample.
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}

	if len(data) > width {
		data = data[len(data)-width:]
	}

	ceiling := 1.0
	for _, v := range data {
		if v > ceiling {
			ceiling = v
		}
	}

	var sb strings.Builder
	sb.Grow(len(data) * 3)

	top := len(sparklineBlocks) - 1
	for _, v := range data {
		level := int(v / ceiling * float64(top))
		if level < 0 {
			level = 0
		} else if level > top {
			level = top
		}
		sb.WriteRune(sparklineBlocks[level])
	}

	style := lipgloss.NewStyle().Foreground(thresholdColor(data[len(data)-1]))
	return style.Render(sb.String())
}

// thresholdColor grades a usage fraction.
//   - under 0.6: green
//   - 0.6 to 0.8: yellow
//   - 0.8 and above: red
func thresholdColor(fraction float64) lipgloss.Color {
	switch {
	case fraction >= 0.8:
		return ColorError
	case fraction >= 0.6:
		return ColorWarning
	default:
		return ColorSuccess
	}
}
