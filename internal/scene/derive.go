package scene

import (
	"math"
	"slices"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

// #region actions
// actions returns the start/end checkpoint actions of an object kind.
func actions(kind experiment.ObjectKind) (start, end Action, ok bool) {
	switch kind {
	case experiment.ObjectText:
		return StartText, EndText, true
	case experiment.ObjectVideo:
		return StartVideo, EndVideo, true
	case experiment.ObjectAudio:
		return StartAudio, EndAudio, true
	case experiment.ObjectTone:
		return StartTone, EndTone, true
	}
	return 0, 0, false
}

func compareCheckpoints(a, b Checkpoint) int {
	if a.Frame != b.Frame {
		return a.Frame - b.Frame
	}
	return a.Action.rank() - b.Action.rank()
}
// #endregion actions

// #region rederive
// Rederive recomputes the timing, checkpoints, scene end and sound table of
// trial from its parameter rows. It runs after compile and after any
// substitution that touches timing or audio slots, reusing the pre-sized
// per-trial buffers.
func (s *Schedule) Rederive(trial int) {
	dev := s.Device
	cps := s.Checkpoints[trial][:0]
	sounds := s.Sounds[trial][:0]
	end := 0

	for o := 1; o < s.Objects; o++ {
		id := experiment.ObjectID(o)
		row := s.Row(trial, id)
		tm := Timing{
			Activated: row[SlotActivated] != 0,
			Start:     int(row[SlotStart]),
			Duration:  int(row[SlotDuration]),
		}
		tm.End = tm.Start + tm.Duration
		row[SlotEnd] = float32(tm.End)
		s.Timing[trial*s.Objects+o] = tm
		if !tm.Activated {
			continue
		}
		end = max(end, tm.End)

		kind := s.Info[o].Kind
		if start, stop, ok := actions(kind); ok {
			if len(cps)+2 >= cap(cps) {
				experiment.Assertf(false, "checkpoint buffer of trial %d is full", trial)
			}
			cps = append(cps,
				Checkpoint{Frame: tm.Start, Action: start, Object: id},
				Checkpoint{Frame: tm.End, Action: stop, Object: id},
			)
		}

		ramp := int(math.Round(float64(row[SlotRamp]) * float64(dev.SampleRate)))
		switch kind {
		case experiment.ObjectTone:
			f := float64(row[SlotFrequency])
			a := float64(row[SlotAmplitude])
			for n := 1; n <= int(row[SlotHarmonics]); n++ {
				if len(sounds) == cap(sounds) {
					experiment.Assertf(false, "sound table of trial %d is full", trial)
				}
				sounds = append(sounds, Sound{
					Kind:      SoundTone,
					Object:    id,
					Start:     dev.Samples(tm.Start),
					End:       dev.Samples(tm.End),
					Frequency: f * float64(n),
					Amplitude: a / float64(n),
					Channel:   int(row[SlotChannel]),
					Ramp:      ramp,
				})
			}
		case experiment.ObjectAudio:
			if len(sounds) == cap(sounds) {
				experiment.Assertf(false, "sound table of trial %d is full", trial)
			}
			sounds = append(sounds, Sound{
				Kind:      SoundAudio,
				Object:    id,
				Media:     int(row[SlotMedia]),
				Start:     dev.Samples(tm.Start),
				End:       dev.Samples(tm.End),
				Amplitude: float64(row[SlotVolume]),
				Channel:   int(row[SlotChannel]),
				Ramp:      ramp,
			})
		}
	}

	if s.Scene.Duration.Mode == experiment.DurationFixed {
		end = dev.Frames(s.Scene.Duration.Seconds)
	}
	s.SceneEnd[trial] = end
	cps = append(cps, Checkpoint{Frame: end, Action: EndScene})
	slices.SortStableFunc(cps, compareCheckpoints)

	s.Checkpoints[trial] = cps
	s.Sounds[trial] = sounds
}
// #endregion rederive
