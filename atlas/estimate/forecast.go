package estimate

import (
	"fmt"
	"math"
)

// Calibration holds the empirical constants of the forecast model. They
// are derived from observed ratios of known counts to known sizes and
// timings for this dataset, and are configuration, not runtime-computed.
//
// Anchor: 17342 papers embed in ~26s on the GPU profile and project in
// ~22s.
type Calibration struct {
	BytesPerPaper      int64
	GPUPapersPerSecond float64
	CPUPapersPerSecond float64
	ProjectionRate     float64
	ProjectionEpsilon  float64
}

// DefaultCalibration returns the shipped constants.
func DefaultCalibration() Calibration {
	return Calibration{
		BytesPerPaper:      1000,
		GPUPapersPerSecond: 667.0,
		CPUPapersPerSecond: 55.0,
		ProjectionRate:     857.0,
		ProjectionEpsilon:  5e-6,
	}
}

func (c Calibration) withDefaults() Calibration {
	def := DefaultCalibration()
	if c.BytesPerPaper <= 0 {
		c.BytesPerPaper = def.BytesPerPaper
	}
	if c.GPUPapersPerSecond <= 0 {
		c.GPUPapersPerSecond = def.GPUPapersPerSecond
	}
	if c.CPUPapersPerSecond <= 0 {
		c.CPUPapersPerSecond = def.CPUPapersPerSecond
	}
	if c.ProjectionRate <= 0 {
		c.ProjectionRate = def.ProjectionRate
	}
	if c.ProjectionEpsilon <= 0 {
		c.ProjectionEpsilon = def.ProjectionEpsilon
	}
	return c
}

// ProfileForecast is one hardware profile's forecast, in seconds and
// rendered for display.
type ProfileForecast struct {
	EmbedSeconds      float64 `json:"embed_seconds"`
	ProjectionSeconds float64 `json:"projection_seconds"`
	TotalSeconds      float64 `json:"total_seconds"`
	Embed             string  `json:"embed"`
	Projection        string  `json:"projection"`
	Total             string  `json:"total"`
}

// Forecast pairs the two hardware-profile forecasts for one paper count.
// The contract is reproducibility given the same constants and count, not
// physical accuracy.
type Forecast struct {
	Papers int             `json:"papers"`
	GPU    ProfileForecast `json:"gpu"`
	CPU    ProfileForecast `json:"cpu"`
}

// ProcessingTime forecasts embedding (linear in count) plus projection
// (slightly worse than linear: n·(1+ε·n)/rate) per hardware profile.
func (c Calibration) ProcessingTime(papers int) Forecast {
	c = c.withDefaults()
	n := float64(papers)
	projection := n * (1 + c.ProjectionEpsilon*n) / c.ProjectionRate

	return Forecast{
		Papers: papers,
		GPU:    newProfile(n/c.GPUPapersPerSecond, projection),
		CPU:    newProfile(n/c.CPUPapersPerSecond, projection),
	}
}

func newProfile(embed, projection float64) ProfileForecast {
	return ProfileForecast{
		EmbedSeconds:      embed,
		ProjectionSeconds: projection,
		TotalSeconds:      embed + projection,
		Embed:             FormatDuration(embed),
		Projection:        FormatDuration(projection),
		Total:             FormatDuration(embed + projection),
	}
}

// FormatDuration renders seconds for humans: seconds under one minute,
// minutes-and-seconds under one hour, hours-and-minutes otherwise.
func FormatDuration(seconds float64) string {
	total := int(math.Round(seconds))
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	if total < 3600 {
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	}
	return fmt.Sprintf("%dh %dm", total/3600, (total%3600)/60)
}
