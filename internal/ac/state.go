// Package ac holds the canonical in-memory model of one air conditioner.
// The model owns the cross-field consistency rules: whenever a setting is
// changed, either by a local intent or by a device report, dependent fields
// are harmonized so the stored state never contradicts itself (turbo locks
// the fan to Turbo, sleep locks it to Low, dry mode forces a low fan, and
// turbo and sleep are mutually exclusive).
package ac

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSuppressionWindow is how long a stale "power on" report is
// discarded after power was locally commanded off. The unit keeps echoing
// the previous status for a moment after acknowledging an off command.
const DefaultSuppressionWindow = 5 * time.Second

// Snapshot is an immutable copy of the full device state.
type Snapshot struct {
	Power       PowerState    `json:"power"`
	Mode        OperationMode `json:"mode"`
	TargetTemp  float64       `json:"target_temp"` // Celsius
	CurrentTemp float64       `json:"current_temp"`
	OutdoorTemp *float64      `json:"outdoor_temp,omitempty"`
	FanSpeed    FanSpeed      `json:"fan"`
	Swing       SwingMode     `json:"swing"`
	Turbo       PowerState    `json:"turbo"`
	Eco         PowerState    `json:"eco"`
	Display     PowerState    `json:"display"`
	Beep        PowerState    `json:"beep"`
	Sleep       SleepState    `json:"sleep"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Equal compares the tracked settings. LastUpdated is bookkeeping, not a
// setting, so it does not participate.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.OutdoorTemp == nil || o.OutdoorTemp == nil {
		if s.OutdoorTemp != o.OutdoorTemp {
			return false
		}
	} else if *s.OutdoorTemp != *o.OutdoorTemp {
		return false
	}
	return s.Power == o.Power &&
		s.Mode == o.Mode &&
		s.TargetTemp == o.TargetTemp &&
		s.CurrentTemp == o.CurrentTemp &&
		s.FanSpeed == o.FanSpeed &&
		s.Swing == o.Swing &&
		s.Turbo == o.Turbo &&
		s.Eco == o.Eco &&
		s.Display == o.Display &&
		s.Beep == o.Beep &&
		s.Sleep == o.Sleep
}

// State is the live, mutable model of a single device. One instance per
// physical unit, shared by the command queue, the poller and any adapters;
// all mutation goes through the harmonizing entry points below.
type State struct {
	mu sync.Mutex

	name string

	power       PowerState
	mode        OperationMode
	targetTemp  float64
	currentTemp float64
	outdoorTemp *float64
	fan         FanSpeed
	swing       SwingMode
	turbo       PowerState
	eco         PowerState
	display     PowerState
	beep        PowerState
	sleep       SleepState

	lastUpdated  time.Time
	lastPowerOff time.Time
	suppression  time.Duration

	listeners []func(Snapshot)

	now func() time.Time
}

// NewState creates a model with factory defaults: powered off, auto mode,
// auto fan, beeper and display enabled.
// suppression is the stale-power-report window (0 = default 5s).
func NewState(name string, suppression time.Duration) *State {
	if suppression == 0 {
		suppression = DefaultSuppressionWindow
	}
	return &State{
		name:        name,
		power:       PowerOff,
		mode:        ModeAuto,
		targetTemp:  22,
		fan:         FanAuto,
		swing:       SwingOff,
		turbo:       PowerOff,
		eco:         PowerOff,
		display:     PowerOn,
		beep:        PowerOn,
		sleep:       SleepOff,
		suppression: suppression,
		now:         time.Now,
	}
}

// Subscribe registers a listener invoked synchronously after every net
// change, with the post-change snapshot. Listeners must not block.
func (s *State) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Apply applies a (possibly multi-field) local intent, harmonizes the
// result and notifies listeners once if anything changed. Fields are
// applied in a fixed order: power, mode, temperature, fan, swing, turbo,
// auxiliary toggles, sleep. For the conflicting pairs (turbo vs sleep,
// fan vs turbo) the most recently applied field wins.
func (s *State) Apply(opts Options) bool {
	s.mu.Lock()
	before := s.snapshotLocked()

	if opts.Power != nil {
		s.setPowerLocked(*opts.Power, true)
	}
	if opts.Mode != nil {
		s.setModeLocked(*opts.Mode)
	}
	if opts.TargetTemp != nil {
		s.targetTemp = ClampTargetTemp(*opts.TargetTemp)
	}
	if opts.FanSpeed != nil {
		s.setFanLocked(*opts.FanSpeed)
	}
	if opts.Swing != nil {
		s.swing = *opts.Swing
	}
	if opts.Turbo != nil {
		s.setTurboLocked(*opts.Turbo)
	}
	if opts.Eco != nil {
		s.eco = *opts.Eco
	}
	if opts.Display != nil {
		s.display = *opts.Display
	}
	if opts.Beep != nil {
		s.beep = *opts.Beep
	}
	if opts.Sleep != nil {
		s.setSleepLocked(*opts.Sleep)
	}

	s.harmonizeLocked()
	changed, snap := s.commitLocked(before)
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	return changed
}

// SetPower switches the master power. Turning off resets the operational
// fields (mode, fan, swing, turbo, sleep) to their idle defaults;
// temperature, display and beep are preserved.
func (s *State) SetPower(v PowerState) bool { return s.Apply(Options{Power: &v}) }

// SetOperationMode changes the operating mode. Dry forces a low fan and
// drops turbo; an explicit change to auto resets the fan to auto.
func (s *State) SetOperationMode(m OperationMode) bool { return s.Apply(Options{Mode: &m}) }

// SetTargetTemperature sets the Celsius setpoint, clamped to [16,30].
func (s *State) SetTargetTemperature(c float64) bool { return s.Apply(Options{TargetTemp: &c}) }

// SetFanSpeed changes the fan. A non-Turbo speed disengages turbo, a
// non-Low speed disengages sleep, and Turbo engages turbo.
func (s *State) SetFanSpeed(f FanSpeed) bool { return s.Apply(Options{FanSpeed: &f}) }

// SetSwingMode changes the louver setting.
func (s *State) SetSwingMode(m SwingMode) bool { return s.Apply(Options{Swing: &m}) }

// SetTurboMode toggles turbo. Engaging it drops sleep and locks the fan
// to Turbo; disengaging it returns a Turbo fan to auto.
func (s *State) SetTurboMode(v PowerState) bool { return s.Apply(Options{Turbo: &v}) }

// SetSleepMode toggles the sleep curve. Engaging it drops turbo and locks
// the fan to Low.
func (s *State) SetSleepMode(v SleepState) bool { return s.Apply(Options{Sleep: &v}) }

// SetEcoMode toggles eco operation.
func (s *State) SetEcoMode(v PowerState) bool { return s.Apply(Options{Eco: &v}) }

// SetDisplayMode toggles the front panel display.
func (s *State) SetDisplayMode(v PowerState) bool { return s.Apply(Options{Display: &v}) }

// SetBeepMode toggles the acknowledgment beeper.
func (s *State) SetBeepMode(v PowerState) bool { return s.Apply(Options{Beep: &v}) }

// UpdateFromDevice merges a device-reported snapshot into the model.
// Reported values are accepted permissively (unknown literals are stored
// as-is), the usual harmonization runs over the merged result, and a
// "power on" report is discarded while the stale-report window after a
// local power-off command is open — the rest of the same snapshot still
// applies. Returns whether any tracked field changed.
func (s *State) UpdateFromDevice(st Status) bool {
	s.mu.Lock()
	before := s.snapshotLocked()

	if st.IsOn != nil {
		reported := PowerState(*st.IsOn)
		if reported == PowerOn && s.power == PowerOff && s.suppressedLocked() {
			log.Debug().
				Str("device", s.name).
				Msg("Discarding stale power-on report after recent off command")
		} else {
			s.setPowerLocked(reported, false)
		}
	}
	if st.OperationMode != nil {
		// Reported mode changes never reset the fan; that default is
		// for explicit local changes only.
		s.mode = OperationMode(*st.OperationMode)
	}
	if st.TargetTemp != nil {
		s.targetTemp = ClampTargetTemp(FahrenheitToCelsius(*st.TargetTemp))
	}
	if st.CurrentTemp != nil {
		s.currentTemp = FahrenheitToCelsius(*st.CurrentTemp)
	}
	if st.OutdoorTemp != nil {
		v := FahrenheitToCelsius(*st.OutdoorTemp)
		s.outdoorTemp = &v
	}
	if st.FanMode != nil {
		s.fan = FanSpeed(*st.FanMode)
	}
	if st.SwingMode != nil {
		s.swing = SwingMode(*st.SwingMode)
	}
	if st.OptTurbo != nil {
		s.turbo = PowerState(*st.OptTurbo)
	}
	if st.OptEco != nil {
		s.eco = PowerState(*st.OptEco)
	}
	if st.OptDisplay != nil {
		s.display = PowerState(*st.OptDisplay)
	}
	if st.OptBeep != nil {
		s.beep = PowerState(*st.OptBeep)
	}
	if st.OptSleepMode != nil {
		s.sleep = SleepState(*st.OptSleepMode)
	}

	s.harmonizeLocked()
	changed, snap := s.commitLocked(before)
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	return changed
}

// ToApiStatus renders the full state in the wire shape: protocol literals
// and Fahrenheit temperatures.
func (s *State) ToApiStatus() Status {
	snap := s.Snapshot()

	strp := func(v string) *string { return &v }
	f64p := func(v float64) *float64 { return &v }

	st := Status{
		IsOn:          strp(string(snap.Power)),
		OperationMode: strp(string(snap.Mode)),
		TargetTemp:    f64p(CelsiusToFahrenheit(snap.TargetTemp)),
		CurrentTemp:   f64p(CelsiusToFahrenheit(snap.CurrentTemp)),
		FanMode:       strp(string(snap.FanSpeed)),
		SwingMode:     strp(string(snap.Swing)),
		OptTurbo:      strp(string(snap.Turbo)),
		OptEco:        strp(string(snap.Eco)),
		OptDisplay:    strp(string(snap.Display)),
		OptBeep:       strp(string(snap.Beep)),
		OptSleepMode:  strp(string(snap.Sleep)),
	}
	if snap.OutdoorTemp != nil {
		st.OutdoorTemp = f64p(CelsiusToFahrenheit(*snap.OutdoorTemp))
	}
	return st
}

// Snapshot returns a copy of the full state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Name returns the device name the state was created with.
func (s *State) Name() string { return s.name }

// Power returns the master power setting.
func (s *State) Power() PowerState { return s.Snapshot().Power }

// OperationMode returns the operating mode.
func (s *State) OperationMode() OperationMode { return s.Snapshot().Mode }

// TargetTemperature returns the Celsius setpoint.
func (s *State) TargetTemperature() float64 { return s.Snapshot().TargetTemp }

// CurrentTemperature returns the last reported indoor temperature.
func (s *State) CurrentTemperature() float64 { return s.Snapshot().CurrentTemp }

// OutdoorTemperature returns the last reported outdoor temperature, or nil
// if the unit never reported one.
func (s *State) OutdoorTemperature() *float64 { return s.Snapshot().OutdoorTemp }

// FanSpeed returns the fan setting.
func (s *State) FanSpeed() FanSpeed { return s.Snapshot().FanSpeed }

// SwingMode returns the louver setting.
func (s *State) SwingMode() SwingMode { return s.Snapshot().Swing }

// TurboMode returns the turbo toggle.
func (s *State) TurboMode() PowerState { return s.Snapshot().Turbo }

// EcoMode returns the eco toggle.
func (s *State) EcoMode() PowerState { return s.Snapshot().Eco }

// DisplayMode returns the display toggle.
func (s *State) DisplayMode() PowerState { return s.Snapshot().Display }

// BeepMode returns the beeper toggle.
func (s *State) BeepMode() PowerState { return s.Snapshot().Beep }

// SleepMode returns the sleep curve setting.
func (s *State) SleepMode() SleepState { return s.Snapshot().Sleep }

// LastUpdated returns when a tracked field last changed.
func (s *State) LastUpdated() time.Time { return s.Snapshot().LastUpdated }

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		Power:       s.power,
		Mode:        s.mode,
		TargetTemp:  s.targetTemp,
		CurrentTemp: s.currentTemp,
		FanSpeed:    s.fan,
		Swing:       s.swing,
		Turbo:       s.turbo,
		Eco:         s.eco,
		Display:     s.display,
		Beep:        s.beep,
		Sleep:       s.sleep,
		LastUpdated: s.lastUpdated,
	}
	if s.outdoorTemp != nil {
		v := *s.outdoorTemp
		snap.OutdoorTemp = &v
	}
	return snap
}

// setPowerLocked applies a power change. Turning off resets the
// operational fields; local off commands additionally open the stale
// report suppression window.
func (s *State) setPowerLocked(v PowerState, local bool) {
	if v == s.power {
		return
	}
	if v == PowerOff {
		s.resetOperationalLocked()
		if local {
			s.lastPowerOff = s.now()
		}
	}
	s.power = v
}

// resetOperationalLocked puts the operational fields back to their idle
// defaults. Temperature, display and beep survive a power-off.
func (s *State) resetOperationalLocked() {
	s.turbo = PowerOff
	s.sleep = SleepOff
	s.fan = FanAuto
	s.mode = ModeAuto
	s.swing = SwingOff
}

func (s *State) setModeLocked(m OperationMode) {
	if m == s.mode {
		return
	}
	s.mode = m
	switch m {
	case ModeDry:
		s.fan = FanLow
		s.turbo = PowerOff
	case ModeAuto:
		// Explicit change to auto resets the fan; the turbo lock in
		// harmonizeLocked still wins if turbo stays engaged.
		s.fan = FanAuto
	}
}

func (s *State) setFanLocked(f FanSpeed) {
	s.fan = f
	if f == FanTurbo {
		s.turbo = PowerOn
		s.sleep = SleepOff
		return
	}
	s.turbo = PowerOff
	if f != FanLow {
		s.sleep = SleepOff
	}
}

func (s *State) setTurboLocked(v PowerState) {
	s.turbo = v
	if v.IsOn() {
		s.sleep = SleepOff
		s.fan = FanTurbo
		return
	}
	if s.fan == FanTurbo {
		s.fan = FanAuto
	}
}

func (s *State) setSleepLocked(v SleepState) {
	s.sleep = v
	if v.Enabled() {
		s.turbo = PowerOff
		s.fan = FanLow
	}
}

// harmonizeLocked enforces the standing rules over whatever the last
// mutation produced. Mode defaults come first, the turbo/sleep fan locks
// last, so the locks win when both could apply.
func (s *State) harmonizeLocked() {
	if s.mode == ModeDry {
		s.turbo = PowerOff
		s.fan = FanLow
	}
	if s.turbo.IsOn() && s.sleep.Enabled() {
		// Contradictory report: trust turbo, the unit is known to
		// misreport around it.
		s.sleep = SleepOff
	}
	if s.turbo.IsOn() {
		// Also corrects units reporting an auto fan while turbo runs.
		s.fan = FanTurbo
	}
	if s.sleep.Enabled() {
		s.fan = FanLow
	}
}

func (s *State) suppressedLocked() bool {
	return !s.lastPowerOff.IsZero() && s.now().Sub(s.lastPowerOff) < s.suppression
}

// commitLocked stamps lastUpdated if the tracked settings differ from
// before and returns the change flag with the post-change snapshot.
func (s *State) commitLocked(before Snapshot) (bool, Snapshot) {
	after := s.snapshotLocked()
	if before.Equal(after) {
		return false, after
	}
	s.lastUpdated = s.now()
	after.LastUpdated = s.lastUpdated
	return true, after
}

// notify runs outside the state lock so listeners may read back through
// the getters.
func (s *State) notify(snap Snapshot) {
	s.mu.Lock()
	listeners := make([]func(Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
