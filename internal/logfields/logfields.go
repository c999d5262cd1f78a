package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTask       = "task"
	KeyClass      = "asset_class"
	KeyPath       = "path"
	KeyRoot       = "root"
	KeyDest       = "dest"
	KeyFiles      = "files"
	KeyDurationMS = "duration_ms"
	KeyPort       = "port"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyUserAgent  = "user_agent"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }
func Task(name string) slog.Attr         { return slog.String(KeyTask, name) }
func Class(c string) slog.Attr           { return slog.String(KeyClass, c) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func Root(r string) slog.Attr            { return slog.String(KeyRoot, r) }
func Dest(d string) slog.Attr            { return slog.String(KeyDest, d) }
func Files(n int) slog.Attr              { return slog.Int(KeyFiles, n) }
func Port(p int) slog.Attr               { return slog.Int(KeyPort, p) }
func Method(m string) slog.Attr          { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr          { return slog.Int(KeyStatus, code) }
func RemoteAddr(addr string) slog.Attr   { return slog.String(KeyRemoteAddr, addr) }
func UserAgent(ua string) slog.Attr      { return slog.String(KeyUserAgent, ua) }
func Duration(d time.Duration) slog.Attr { return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
