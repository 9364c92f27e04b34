package camera

import "math"

// Settings holds what an opened device actually negotiated, as opposed to
// what was requested. Produced once per successful open.
type Settings struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	// IsCaptureDevice marks devices that report fps == 0, typically
	// HDMI/USB capture adapters. They get longer warm-up and skip
	// capability probing.
	IsCaptureDevice bool `json:"isCaptureDevice"`
}

// Valid reports whether the settings can drive pacing and a video writer.
func (s Settings) Valid() bool {
	return s.Width > 0 && s.Height > 0 && s.FPS > 0 && !math.IsInf(s.FPS, 0) && !math.IsNaN(s.FPS)
}

// maxFPS caps the negotiated rate; devices reporting more are paced down.
const maxFPS = 30.0

// clampFPS resolves any reported rate to a positive finite value: zero,
// negative, NaN and infinite rates become fallback, everything is capped
// at maxFPS.
func clampFPS(fps, fallback float64) float64 {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return fallback
	}
	return math.Min(fps, maxFPS)
}
