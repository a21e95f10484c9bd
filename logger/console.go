package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ansiReset = "\033[0m"
	ansiBlue  = "\033[34m"
)

var levelStyles = map[string]struct{ tag, color string }{
	zerolog.LevelTraceValue: {"TRC", "\033[90m"},
	zerolog.LevelDebugValue: {"DBG", "\033[36m"},
	zerolog.LevelInfoValue:  {"INF", "\033[32m"},
	zerolog.LevelWarnValue:  {"WRN", "\033[33m"},
	zerolog.LevelErrorValue: {"ERR", "\033[31m"},
	zerolog.LevelFatalValue: {"FTL", "\033[35m"},
}

func isConsole(format string) bool {
	switch strings.ToLower(format) {
	case FormatConsole, FormatPretty:
		return true
	}
	return false
}

// consoleWriter renders records as "[SVC][INF] message key:value". The
// service prefix is the first three letters of its name.
func consoleWriter(out io.Writer, service string, noColor bool) zerolog.ConsoleWriter {
	paint := func(s, color string) string {
		if noColor || color == "" {
			return s
		}
		return color + s + ansiReset
	}
	prefix := ""
	if len(service) >= 3 && service != "default" {
		prefix = paint("["+strings.ToUpper(service[:3])+"]", ansiBlue)
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: "15:04:05.000",
		FormatLevel: func(i interface{}) string {
			raw := fmt.Sprint(i)
			style, ok := levelStyles[raw]
			if !ok {
				style.tag = strings.ToUpper(raw)
			}
			return prefix + paint("["+style.tag+"]", style.color)
		},
		FormatFieldName: func(i interface{}) string { return fmt.Sprint(i) + ":" },
	}
}
