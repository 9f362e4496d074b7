package experiment

import (
	"fmt"
	"math"
)

// #region device

// Device carries the display and audio parameters used for unit conversion.
type Device struct {
	FrameRate         float64 `yaml:"frame_rate" json:"frame_rate"`
	Width             int     `yaml:"width" json:"width"`
	Height            int     `yaml:"height" json:"height"`
	SampleRate        int     `yaml:"sample_rate" json:"sample_rate"`
	PixelsPerCm       float64 `yaml:"pixels_per_cm" json:"pixels_per_cm"`
	ViewingDistanceCm float64 `yaml:"viewing_distance_cm" json:"viewing_distance_cm"`
}

// DefaultDevice returns a 60 Hz 1920×1080 display at 57 cm with 44.1 kHz audio.
func DefaultDevice() Device {
	return Device{
		FrameRate:         60,
		Width:             1920,
		Height:            1080,
		SampleRate:        44100,
		PixelsPerCm:       37.8,
		ViewingDistanceCm: 57,
	}
}

// Validate rejects parameters that make conversion meaningless.
func (d Device) Validate() error {
	switch {
	case d.FrameRate <= 0:
		return fmt.Errorf("device: frame rate must be positive, got %v", d.FrameRate)
	case d.Width <= 0 || d.Height <= 0:
		return fmt.Errorf("device: screen size must be positive, got %dx%d", d.Width, d.Height)
	case d.SampleRate <= 0:
		return fmt.Errorf("device: sample rate must be positive, got %d", d.SampleRate)
	case d.PixelsPerCm <= 0:
		return fmt.Errorf("device: pixels per cm must be positive, got %v", d.PixelsPerCm)
	case d.ViewingDistanceCm <= 0:
		return fmt.Errorf("device: viewing distance must be positive, got %v", d.ViewingDistanceCm)
	}
	return nil
}

// #endregion device

// #region conversion

// Frames converts seconds to an integer frame count, round(seconds·frameRate).
func (d Device) Frames(seconds float64) int {
	return int(math.Round(seconds * d.FrameRate))
}

// Samples converts a frame count to audio samples on the frame clock.
func (d Device) Samples(frames int) int {
	return int(math.Round(float64(frames) * float64(d.SampleRate) / d.FrameRate))
}

// Scale returns the linear factor that takes a quantity in unit u to pixels.
// Non-length units return 1.
func (d Device) Scale(u Unit) float64 {
	switch u {
	case UnitCentimeter:
		return d.PixelsPerCm
	case UnitInch:
		return 2.54 * d.PixelsPerCm
	case UnitDegree:
		return 2 * d.ViewingDistanceCm * math.Tan(math.Pi/360) * d.PixelsPerCm
	}
	return 1
}

// #endregion conversion
