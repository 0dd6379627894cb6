package logger

import (
	"io"
	"log/slog"
	"time"
)

// newTextHandler returns the console handler: slog text format without the
// time attribute and with TRACE rendered by name.
func newTextHandler(w io.Writer, level slog.Level, _ *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				return renderLevel(a)
			}
			return a
		},
	})
}

// newJSONHandler returns the file handler with timestamps converted to tz.
func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok && tz != nil {
					return slog.Time(slog.TimeKey, t.In(tz))
				}
			case slog.LevelKey:
				return renderLevel(a)
			}
			return a
		},
	})
}

func renderLevel(a slog.Attr) slog.Attr {
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
		return slog.String(slog.LevelKey, "TRACE")
	}
	return a
}
