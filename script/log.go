package script

import (
	"github.com/yaoapp/kun/log"
	lua "github.com/yuin/gopher-lua"
)

// openLog install the log table
// log.info("%s %v", "name", {foo = "bar"})
func (s *session) openLog() {
	tbl := s.L.NewTable()
	tbl.RawSetString("trace", s.L.NewFunction(s.logger(log.TraceLevel)))
	tbl.RawSetString("debug", s.L.NewFunction(s.logger(log.DebugLevel)))
	tbl.RawSetString("info", s.L.NewFunction(s.logger(log.InfoLevel)))
	tbl.RawSetString("warn", s.L.NewFunction(s.logger(log.WarnLevel)))
	tbl.RawSetString("error", s.L.NewFunction(s.logger(log.ErrorLevel)))
	s.L.SetGlobal("log", tbl)
}

func (s *session) logger(level log.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		message := L.CheckString(1)
		values := []interface{}{}
		for i := 2; i <= L.GetTop(); i++ {
			value, err := ToJSON(L.Get(i), s.maxDepth)
			if err != nil {
				values = append(values, L.Get(i).String())
				continue
			}
			values = append(values, value)
		}

		entry := log.With(log.F{"account_id": s.accountID.String(), "session": s.tag})
		switch level {
		case log.TraceLevel:
			entry.Trace(message, values...)
		case log.DebugLevel:
			entry.Debug(message, values...)
		case log.InfoLevel:
			entry.Info(message, values...)
		case log.WarnLevel:
			entry.Warn(message, values...)
		default:
			entry.Error(message, values...)
		}
		return 0
	}
}
