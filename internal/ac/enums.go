package ac

// PowerState is the wire literal for binary switches (power, turbo, eco,
// display, beep).
type PowerState string

const (
	PowerOn  PowerState = "on"
	PowerOff PowerState = "off"
)

// IsOn reports whether the state is the "on" literal.
func (p PowerState) IsOn() bool {
	return p == PowerOn
}

// OperationMode is the wire literal for the operating mode (BaseMode).
type OperationMode string

const (
	ModeCool     OperationMode = "cool"
	ModeHeat     OperationMode = "heat"
	ModeAuto     OperationMode = "auto"
	ModeFanOnly  OperationMode = "fan_only"
	ModeDry      OperationMode = "dry"
	ModeSelfFeel OperationMode = "selfFeel"
)

// FanSpeed is the wire literal for the fan setting (WindSpeed).
type FanSpeed string

const (
	FanSilent     FanSpeed = "Silent"
	FanLow        FanSpeed = "Low"
	FanMediumLow  FanSpeed = "MediumLow"
	FanMedium     FanSpeed = "Medium"
	FanMediumHigh FanSpeed = "MediumHigh"
	FanHigh       FanSpeed = "High"
	FanTurbo      FanSpeed = "Turbo"
	FanAuto       FanSpeed = "Auto"
)

// SwingMode is the louver setting. On the wire it is split into two
// on/off direction flags (WindDirection_H / WindDirection_V); the tfiac
// package handles that mapping.
type SwingMode string

const (
	SwingOff        SwingMode = "Off"
	SwingVertical   SwingMode = "Vertical"
	SwingHorizontal SwingMode = "Horizontal"
	SwingBoth       SwingMode = "Both"
)

// SleepState is the sleep curve setting. The firmware expects the full
// curve literal rather than a plain flag.
type SleepState string

const (
	SleepOn  SleepState = "sleepMode1:0:0:0:0:0:0:0:0:0:0"
	SleepOff SleepState = "off"
)

// Enabled reports whether the value represents an engaged sleep curve.
// Unknown non-empty literals count as engaged: firmware revisions ship
// different curve strings and all of them mean "sleep is on".
func (s SleepState) Enabled() bool {
	return s != "" && s != SleepOff
}

// Target temperature bounds in Celsius, enforced on every set.
const (
	MinTargetTemp = 16.0
	MaxTargetTemp = 30.0
)

// ClampTargetTemp clamps a Celsius setpoint to the supported range.
func ClampTargetTemp(c float64) float64 {
	if c < MinTargetTemp {
		return MinTargetTemp
	}
	if c > MaxTargetTemp {
		return MaxTargetTemp
	}
	return c
}

// CelsiusToFahrenheit converts to the protocol's native unit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// FahrenheitToCelsius converts from the protocol's native unit.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32.0) * 5.0 / 9.0
}
