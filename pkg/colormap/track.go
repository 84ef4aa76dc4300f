package colormap

import (
	"image/color"

	"github.com/genome-heatmap/server/internal/schema"
)

// Neutral colors for values outside a track's domain.
var (
	// SentinelGray renders the -1 not-applicable sentinel of
	// consistency scores.
	SentinelGray = color.RGBA{160, 160, 160, 255}
	// MissingGray renders values that cannot be resolved at all.
	MissingGray = color.RGBA{220, 220, 220, 255}
)

// TrackColor maps one field value to a color under a track's declared
// domain. Categorical tracks index the categorical palette by level
// position; numeric tracks normalize into the declared [min, max] and
// sample the track's named colormap. A -1 on a track whose domain
// starts at -1 is the not-applicable sentinel and renders neutral gray.
func TrackColor(track schema.TrackDefinition, v any) color.Color {
	f, ok := toFloat(v)
	if !ok {
		return MissingGray
	}

	if track.Kind == schema.KindCategorical {
		for i, level := range track.Categories {
			if level.Value == int(f) {
				return Categorical.AtIndex(i)
			}
		}
		return MissingGray
	}

	if track.Min == -1 && f == -1 {
		return SentinelGray
	}
	span := track.Max - track.Min
	if span <= 0 {
		return ByName(track.Colormap).At(0)
	}
	t := (f - track.Min) / span
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return ByName(track.Colormap).At(t)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
