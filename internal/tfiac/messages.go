package tfiac

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

// message is the <msg> envelope every datagram is wrapped in.
type message struct {
	XMLName xml.Name `xml:"msg"`
	MsgID   string   `xml:"msgid,attr"`
	Type    string   `xml:"type,attr"`
	Seq     uint64   `xml:"seq,attr"`

	Status *statusUpdate  `xml:"statusUpdateMsg"`
	Set    *setMessage    `xml:"SetMessage"`
	Sync   *syncStatusReq `xml:"SyncStatusReq"`
}

type syncStatusReq struct{}

// statusUpdate is the unsolicited/polled status body. Temperatures come
// in Fahrenheit; everything else is a string literal. Fields are optional
// because firmware revisions omit some of them.
type statusUpdate struct {
	IndoorTemp     *float64 `xml:"IndoorTemp"`
	SetTemp        *float64 `xml:"SetTemp"`
	OutdoorTemp    *float64 `xml:"OutdoorTemp"`
	BaseMode       *string  `xml:"BaseMode"`
	TurnOn         *string  `xml:"TurnOn"`
	WindSpeed      *string  `xml:"WindSpeed"`
	WindDirectionH *string  `xml:"WindDirection_H"`
	WindDirectionV *string  `xml:"WindDirection_V"`
	OptSuper       *string  `xml:"Opt_super"`
	OptSleepMode   *string  `xml:"Opt_sleepMode"`
	OptECO         *string  `xml:"Opt_ECO"`
	OptDisplay     *string  `xml:"Opt_display"`
	BeepEnable     *string  `xml:"BeepEnable"`
}

// setMessage carries the complete desired settings. The firmware ignores
// partial bodies, so the client always sends every field.
type setMessage struct {
	TurnOn         string `xml:"TurnOn"`
	BaseMode       string `xml:"BaseMode"`
	SetTemp        string `xml:"SetTemp"`
	WindSpeed      string `xml:"WindSpeed"`
	WindDirectionH string `xml:"WindDirection_H"`
	WindDirectionV string `xml:"WindDirection_V"`
	OptSuper       string `xml:"Opt_super"`
	OptSleepMode   string `xml:"Opt_sleepMode"`
	OptECO         string `xml:"Opt_ECO"`
	OptDisplay     string `xml:"Opt_display"`
	BeepEnable     string `xml:"BeepEnable"`
}

func encodeMessage(m message) ([]byte, error) {
	data, err := xml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*message, error) {
	var m message
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &m, nil
}

// statusToAPI converts the wire body into the shared parsed-status shape.
// Temperatures pass through in Fahrenheit; the state model owns unit
// conversion.
func statusToAPI(su statusUpdate) ac.Status {
	st := ac.Status{
		TargetTemp:    su.SetTemp,
		CurrentTemp:   su.IndoorTemp,
		OutdoorTemp:   su.OutdoorTemp,
		IsOn:          su.TurnOn,
		OperationMode: su.BaseMode,
		FanMode:       su.WindSpeed,
		OptTurbo:      su.OptSuper,
		OptEco:        su.OptECO,
		OptDisplay:    su.OptDisplay,
		OptBeep:       su.BeepEnable,
		OptSleepMode:  su.OptSleepMode,
	}
	if su.WindDirectionH != nil || su.WindDirectionV != nil {
		swing := string(swingFromDirections(deref(su.WindDirectionH), deref(su.WindDirectionV)))
		st.SwingMode = &swing
	}
	return st
}

// swingFromDirections folds the two on/off louver flags into the single
// swing literal the rest of the system uses.
func swingFromDirections(h, v string) ac.SwingMode {
	switch {
	case h == "on" && v == "on":
		return ac.SwingBoth
	case h == "on":
		return ac.SwingHorizontal
	case v == "on":
		return ac.SwingVertical
	default:
		return ac.SwingOff
	}
}

func swingToDirections(m ac.SwingMode) (h, v string) {
	switch m {
	case ac.SwingBoth:
		return "on", "on"
	case ac.SwingHorizontal:
		return "on", "off"
	case ac.SwingVertical:
		return "off", "on"
	default:
		return "off", "off"
	}
}

// buildSetMessage builds the full settings body from the last known
// status overlaid with the requested changes. Options temperatures are
// Celsius and get converted here; base temperatures are already wire
// Fahrenheit.
func buildSetMessage(base ac.Status, opts ac.Options) setMessage {
	msg := setMessage{
		TurnOn:       orDefault(base.IsOn, string(ac.PowerOff)),
		BaseMode:     orDefault(base.OperationMode, string(ac.ModeAuto)),
		SetTemp:      formatTemp(base.TargetTemp, ac.CelsiusToFahrenheit(22)),
		WindSpeed:    orDefault(base.FanMode, string(ac.FanAuto)),
		OptSuper:     orDefault(base.OptTurbo, string(ac.PowerOff)),
		OptSleepMode: orDefault(base.OptSleepMode, string(ac.SleepOff)),
		OptECO:       orDefault(base.OptEco, string(ac.PowerOff)),
		OptDisplay:   orDefault(base.OptDisplay, string(ac.PowerOn)),
		BeepEnable:   orDefault(base.OptBeep, string(ac.PowerOn)),
	}
	msg.WindDirectionH, msg.WindDirectionV = swingToDirections(ac.SwingMode(orDefault(base.SwingMode, string(ac.SwingOff))))

	if opts.Power != nil {
		msg.TurnOn = string(*opts.Power)
	}
	if opts.Mode != nil {
		msg.BaseMode = string(*opts.Mode)
	}
	if opts.TargetTemp != nil {
		msg.SetTemp = formatTemp(nil, ac.CelsiusToFahrenheit(ac.ClampTargetTemp(*opts.TargetTemp)))
	}
	if opts.FanSpeed != nil {
		msg.WindSpeed = string(*opts.FanSpeed)
	}
	if opts.Swing != nil {
		msg.WindDirectionH, msg.WindDirectionV = swingToDirections(*opts.Swing)
	}
	if opts.Turbo != nil {
		msg.OptSuper = string(*opts.Turbo)
	}
	if opts.Eco != nil {
		msg.OptECO = string(*opts.Eco)
	}
	if opts.Display != nil {
		msg.OptDisplay = string(*opts.Display)
	}
	if opts.Beep != nil {
		msg.BeepEnable = string(*opts.Beep)
	}
	if opts.Sleep != nil {
		msg.OptSleepMode = string(*opts.Sleep)
	}
	return msg
}

func formatTemp(base *float64, fallback float64) string {
	v := fallback
	if base != nil {
		v = *base
	}
	return strconv.Itoa(int(v + 0.5))
}

func orDefault(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
