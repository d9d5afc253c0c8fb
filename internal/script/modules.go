package script

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

// acLoader registers the "ac" module: device listing, status reads,
// settings writes and change subscriptions.
func (r *Runtime) acLoader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "devices", L.NewFunction(r.luaDevices))
	L.SetField(mod, "status", L.NewFunction(r.luaStatus))
	L.SetField(mod, "set", L.NewFunction(r.luaSet))
	L.SetField(mod, "on_change", L.NewFunction(r.luaOnChange))

	L.Push(mod)
	return 1
}

func (r *Runtime) luaDevices(L *lua.LState) int {
	tbl := L.NewTable()
	for name := range r.devices {
		tbl.Append(lua.LString(name))
	}
	L.Push(tbl)
	return 1
}

func (r *Runtime) luaStatus(L *lua.LState) int {
	name := L.CheckString(1)
	dev, ok := r.devices[name]
	if !ok {
		L.Push(lua.LNil)
		L.Push(lua.LString("unknown device: " + name))
		return 2
	}
	L.Push(snapshotToTable(L, dev.Snapshot()))
	return 1
}

func (r *Runtime) luaSet(L *lua.LState) int {
	name := L.CheckString(1)
	tbl := L.CheckTable(2)

	dev, ok := r.devices[name]
	if !ok {
		L.Push(lua.LFalse)
		L.Push(lua.LString("unknown device: " + name))
		return 2
	}

	opts := tableToOptions(tbl)
	if opts.IsEmpty() {
		L.Push(lua.LFalse)
		L.Push(lua.LString("no settings given"))
		return 2
	}

	// Fire and forget: the command queue owns retries and logging.
	dev.Set(opts)
	L.Push(lua.LTrue)
	return 1
}

func (r *Runtime) luaOnChange(L *lua.LState) int {
	fn := L.CheckFunction(1)
	r.onChange = append(r.onChange, fn)
	return 0
}

// snapshotToTable renders a state snapshot for scripts: Celsius numbers,
// mode/fan/swing literals, booleans for the toggles.
func snapshotToTable(L *lua.LState, snap ac.Snapshot) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "power", lua.LBool(snap.Power.IsOn()))
	L.SetField(tbl, "mode", lua.LString(string(snap.Mode)))
	L.SetField(tbl, "target_temp", lua.LNumber(snap.TargetTemp))
	L.SetField(tbl, "current_temp", lua.LNumber(snap.CurrentTemp))
	if snap.OutdoorTemp != nil {
		L.SetField(tbl, "outdoor_temp", lua.LNumber(*snap.OutdoorTemp))
	}
	L.SetField(tbl, "fan", lua.LString(string(snap.FanSpeed)))
	L.SetField(tbl, "swing", lua.LString(string(snap.Swing)))
	L.SetField(tbl, "turbo", lua.LBool(snap.Turbo.IsOn()))
	L.SetField(tbl, "eco", lua.LBool(snap.Eco.IsOn()))
	L.SetField(tbl, "display", lua.LBool(snap.Display.IsOn()))
	L.SetField(tbl, "beep", lua.LBool(snap.Beep.IsOn()))
	L.SetField(tbl, "sleep", lua.LBool(snap.Sleep.Enabled()))
	return tbl
}

// tableToOptions parses a script settings table into a partial intent.
// Unknown keys are ignored.
func tableToOptions(tbl *lua.LTable) ac.Options {
	var opts ac.Options

	powerState := func(v lua.LValue) *ac.PowerState {
		s := ac.PowerOff
		if lua.LVAsBool(v) {
			s = ac.PowerOn
		}
		return &s
	}

	tbl.ForEach(func(key, value lua.LValue) {
		switch lua.LVAsString(key) {
		case "power":
			opts.Power = powerState(value)
		case "mode":
			m := ac.OperationMode(lua.LVAsString(value))
			opts.Mode = &m
		case "target_temp":
			t := float64(lua.LVAsNumber(value))
			opts.TargetTemp = &t
		case "fan":
			f := ac.FanSpeed(lua.LVAsString(value))
			opts.FanSpeed = &f
		case "swing":
			s := ac.SwingMode(lua.LVAsString(value))
			opts.Swing = &s
		case "turbo":
			opts.Turbo = powerState(value)
		case "eco":
			opts.Eco = powerState(value)
		case "display":
			opts.Display = powerState(value)
		case "beep":
			opts.Beep = powerState(value)
		case "sleep":
			s := ac.SleepOff
			if lua.LVAsBool(value) {
				s = ac.SleepOn
			}
			opts.Sleep = &s
		}
	})

	return opts
}

// logLoader registers the "log" module backed by zerolog.
func logLoader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "debug", L.NewFunction(luaLog(zerolog.DebugLevel)))
	L.SetField(mod, "info", L.NewFunction(luaLog(zerolog.InfoLevel)))
	L.SetField(mod, "warn", L.NewFunction(luaLog(zerolog.WarnLevel)))
	L.SetField(mod, "error", L.NewFunction(luaLog(zerolog.ErrorLevel)))

	L.Push(mod)
	return 1
}

func luaLog(level zerolog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)

		event := log.WithLevel(level).Str("source", "script")
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			tbl.ForEach(func(key, value lua.LValue) {
				event = event.Interface(lua.LVAsString(key), luaToGo(value))
			})
		}
		event.Msg(msg)

		return 0
	}
}

func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		m := make(map[string]any)
		val.ForEach(func(k, inner lua.LValue) {
			m[lua.LVAsString(k)] = luaToGo(inner)
		})
		return m
	default:
		return v.String()
	}
}
