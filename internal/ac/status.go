package ac

// Status is the wire-shaped view of device settings: string enum literals
// and Fahrenheit temperatures, matching what the unit actually speaks.
// All fields are optional so the same shape serves both full snapshots
// (ToApiStatus) and partial device reports (UpdateFromDevice).
type Status struct {
	IsOn          *string  `json:"is_on,omitempty"`
	OperationMode *string  `json:"operation_mode,omitempty"`
	TargetTemp    *float64 `json:"target_temp,omitempty"`
	CurrentTemp   *float64 `json:"current_temp,omitempty"`
	OutdoorTemp   *float64 `json:"outdoor_temp,omitempty"`
	FanMode       *string  `json:"fan_mode,omitempty"`
	SwingMode     *string  `json:"swing_mode,omitempty"`
	OptTurbo      *string  `json:"opt_turbo,omitempty"`
	OptEco        *string  `json:"opt_eco,omitempty"`
	OptDisplay    *string  `json:"opt_display,omitempty"`
	OptBeep       *string  `json:"opt_beep,omitempty"`
	OptSleepMode  *string  `json:"opt_sleepMode,omitempty"`
}

// IsEmpty reports whether the status carries no fields at all.
func (st Status) IsEmpty() bool {
	return st == Status{}
}

// Options is a partial intent to change device settings. Nil fields are
// left untouched. Temperatures are Celsius here; the wire conversion
// happens at the protocol boundary.
type Options struct {
	Power      *PowerState    `json:"power,omitempty"`
	Mode       *OperationMode `json:"mode,omitempty"`
	TargetTemp *float64       `json:"target_temp,omitempty"`
	FanSpeed   *FanSpeed      `json:"fan,omitempty"`
	Swing      *SwingMode     `json:"swing,omitempty"`
	Turbo      *PowerState    `json:"turbo,omitempty"`
	Eco        *PowerState    `json:"eco,omitempty"`
	Display    *PowerState    `json:"display,omitempty"`
	Beep       *PowerState    `json:"beep,omitempty"`
	Sleep      *SleepState    `json:"sleep,omitempty"`
}

// Merge overlays other on top of o. Later values win on conflict;
// nil fields in other leave o untouched.
func (o *Options) Merge(other Options) {
	if other.Power != nil {
		o.Power = other.Power
	}
	if other.Mode != nil {
		o.Mode = other.Mode
	}
	if other.TargetTemp != nil {
		o.TargetTemp = other.TargetTemp
	}
	if other.FanSpeed != nil {
		o.FanSpeed = other.FanSpeed
	}
	if other.Swing != nil {
		o.Swing = other.Swing
	}
	if other.Turbo != nil {
		o.Turbo = other.Turbo
	}
	if other.Eco != nil {
		o.Eco = other.Eco
	}
	if other.Display != nil {
		o.Display = other.Display
	}
	if other.Beep != nil {
		o.Beep = other.Beep
	}
	if other.Sleep != nil {
		o.Sleep = other.Sleep
	}
}

// IsEmpty reports whether the options carry no intent.
func (o Options) IsEmpty() bool {
	return o == Options{}
}
