package scene

import "github.com/danielpatrickdp/stimsched/internal/experiment"

// #region object-row
// Object parameter row layout. Positions are in pixels relative to the screen
// centre with y up; bounds are in viewport pixels with the origin top-left.
const (
	SlotType = iota
	SlotShape
	SlotActivated
	SlotStart    // frames
	SlotDuration // frames
	SlotEnd      // frames
	SlotX
	SlotY
	SlotWidth
	SlotHeight
	SlotRotation // degrees
	SlotOriginX
	SlotOriginY
	SlotColor // 3 slots
	_
	_
	SlotAlpha
	SlotBorderWidth
	SlotBorderColor // 3 slots
	_
	_
	SlotContrast
	SlotContrastA
	SlotNoise
	SlotNoiseSize
	SlotNoiseIntensity
	SlotNoiseSpeed
	SlotNoiseSeed
	SlotModulator
	SlotModFrequency
	SlotModAmplitude
	SlotModPhase
	SlotShapeA
	SlotShapeB
	SlotImage
	SlotDotDensity
	SlotDotCount
	SlotDotSize
	SlotDotSpeed
	SlotDotDirection
	SlotDotCoherence
	SlotMedia
	SlotVolume
	SlotChannel
	SlotFrequency
	SlotAmplitude
	SlotHarmonics
	SlotRamp // seconds
	SlotText
	SlotFont
	SlotFontSize
	SlotBoundLeft
	SlotBoundTop
	SlotBoundRight
	SlotBoundBottom
	SlotVisible

	RowSize
)
// #endregion object-row

// #region background-row
const (
	BgColor = iota // 3 slots
	_
	_
	BgAlpha
	BgContrast
	BgNoise
	BgNoiseSize
	BgNoiseIntensity
	BgNoiseSpeed
	BgNoiseSeed
	BgModulator
	BgModFrequency
	BgModAmplitude
	BgModPhase
	BgWidth
	BgHeight

	BackgroundRowSize
)
// #endregion background-row

// #region caps
const (
	MaxVisualObjects = 16
	MaxVideoObjects  = 2
	MaxAudioObjects  = 8
	MaxTonePartials  = 20
	MaxDots          = 2000

	// MaxSounds is the fixed size of the per-trial sound table.
	MaxSounds = MaxTonePartials + MaxAudioObjects

	// DefaultRamp is the tone on/off ramp when none is authored.
	DefaultRamp = 0.005
)
// #endregion caps

// #region role-slots
// roleSlots maps a role to its first object-row slot.
var roleSlots = [...]int{
	experiment.RoleActivated:      SlotActivated,
	experiment.RoleStart:          SlotStart,
	experiment.RoleDuration:       SlotDuration,
	experiment.RoleX:              SlotX,
	experiment.RoleY:              SlotY,
	experiment.RoleWidth:          SlotWidth,
	experiment.RoleHeight:         SlotHeight,
	experiment.RoleRotation:       SlotRotation,
	experiment.RoleOriginX:        SlotOriginX,
	experiment.RoleOriginY:        SlotOriginY,
	experiment.RoleColor:          SlotColor,
	experiment.RoleAlpha:          SlotAlpha,
	experiment.RoleBorderWidth:    SlotBorderWidth,
	experiment.RoleBorderColor:    SlotBorderColor,
	experiment.RoleContrast:       SlotContrast,
	experiment.RoleContrastA:      SlotContrastA,
	experiment.RoleNoise:          SlotNoise,
	experiment.RoleNoiseSize:      SlotNoiseSize,
	experiment.RoleNoiseIntensity: SlotNoiseIntensity,
	experiment.RoleNoiseSpeed:     SlotNoiseSpeed,
	experiment.RoleModulator:      SlotModulator,
	experiment.RoleModFrequency:   SlotModFrequency,
	experiment.RoleModAmplitude:   SlotModAmplitude,
	experiment.RoleModPhase:       SlotModPhase,
	experiment.RoleShapeA:         SlotShapeA,
	experiment.RoleShapeB:         SlotShapeB,
	experiment.RoleImage:          SlotImage,
	experiment.RoleDotDensity:     SlotDotDensity,
	experiment.RoleDotSize:        SlotDotSize,
	experiment.RoleDotSpeed:       SlotDotSpeed,
	experiment.RoleDotDirection:   SlotDotDirection,
	experiment.RoleDotCoherence:   SlotDotCoherence,
	experiment.RoleMedia:          SlotMedia,
	experiment.RoleVolume:         SlotVolume,
	experiment.RoleChannel:        SlotChannel,
	experiment.RoleFrequency:      SlotFrequency,
	experiment.RoleAmplitude:      SlotAmplitude,
	experiment.RoleHarmonics:      SlotHarmonics,
	experiment.RoleRamp:           SlotRamp,
	experiment.RoleText:           SlotText,
	experiment.RoleFont:           SlotFont,
	experiment.RoleFontSize:       SlotFontSize,
}

// backgroundSlots maps the roles a background accepts to background-row slots.
var backgroundSlots = map[experiment.Role]int{
	experiment.RoleColor:          BgColor,
	experiment.RoleAlpha:          BgAlpha,
	experiment.RoleContrast:       BgContrast,
	experiment.RoleNoise:          BgNoise,
	experiment.RoleNoiseSize:      BgNoiseSize,
	experiment.RoleNoiseIntensity: BgNoiseIntensity,
	experiment.RoleNoiseSpeed:     BgNoiseSpeed,
	experiment.RoleModulator:      BgModulator,
	experiment.RoleModFrequency:   BgModFrequency,
	experiment.RoleModAmplitude:   BgModAmplitude,
	experiment.RoleModPhase:       BgModPhase,
}

// RoleSlot returns the first object-row slot written by role r.
func RoleSlot(r experiment.Role) int { return roleSlots[r] }
// #endregion role-slots

// #region defaults
// defaultValue is used for every optional role an object leaves unset.
func defaultValue(kind experiment.ObjectKind, r experiment.Role) experiment.Value {
	switch r {
	case experiment.RoleActivated, experiment.RoleAlpha, experiment.RoleContrast,
		experiment.RoleVolume, experiment.RoleAmplitude, experiment.RoleHarmonics,
		experiment.RoleDotCoherence:
		return experiment.Scalar(1)
	case experiment.RoleWidth, experiment.RoleHeight:
		return experiment.Scalar(100)
	case experiment.RoleColor:
		if kind == experiment.ObjectBackground {
			return experiment.Vec3(0.5, 0.5, 0.5)
		}
		return experiment.Vec3(1, 1, 1)
	case experiment.RoleBorderColor:
		return experiment.Vec3(0, 0, 0)
	case experiment.RoleDotSize:
		return experiment.Scalar(2)
	case experiment.RoleFontSize:
		return experiment.Scalar(32)
	case experiment.RoleRamp:
		return experiment.Scalar(DefaultRamp)
	}
	return experiment.Scalar(0)
}

// requiredRoles lists the roles an object kind must author.
func requiredRoles(kind experiment.ObjectKind) []experiment.Role {
	switch kind {
	case experiment.ObjectBackground:
		return nil
	case experiment.ObjectImage, experiment.ObjectVideo, experiment.ObjectAudio:
		return []experiment.Role{experiment.RoleDuration, experiment.RoleMedia}
	case experiment.ObjectText:
		return []experiment.Role{experiment.RoleDuration, experiment.RoleText}
	case experiment.ObjectTone:
		return []experiment.Role{experiment.RoleDuration, experiment.RoleFrequency}
	}
	return []experiment.Role{experiment.RoleDuration}
}

// spatial reports whether role r is a length converted to pixels.
func spatial(obj *experiment.Object, r experiment.Role) bool {
	switch r {
	case experiment.RoleX, experiment.RoleWidth, experiment.RoleHeight,
		experiment.RoleOriginX, experiment.RoleOriginY, experiment.RoleBorderWidth,
		experiment.RoleNoiseSize, experiment.RoleDotSize, experiment.RoleDotSpeed,
		experiment.RoleFontSize:
		return true
	case experiment.RoleY:
		return !obj.Polar
	}
	return false
}

// mediaKind returns the media kind a media-valued role must reference.
func mediaKind(kind experiment.ObjectKind, r experiment.Role) (experiment.MediaKind, bool) {
	switch r {
	case experiment.RoleImage:
		return experiment.MediaImage, true
	case experiment.RoleMedia:
		switch kind {
		case experiment.ObjectVideo:
			return experiment.MediaVideo, true
		case experiment.ObjectAudio:
			return experiment.MediaAudio, true
		}
		return experiment.MediaImage, true
	}
	return 0, false
}
// #endregion defaults
