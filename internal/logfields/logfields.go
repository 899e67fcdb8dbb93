package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyRunKey     = "run_key"
	KeyRunStatus  = "run_status"
	KeyRef        = "ref"
	KeyCommit     = "commit"
	KeyPhase      = "phase"
	KeyTarget     = "target"
	KeyFeatures   = "features"
	KeyTool       = "tool"
	KeyBranch     = "branch"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyDurationMS = "duration_ms"
	KeyMethod     = "method"
	KeyRemoteAddr = "remote_addr"
	KeyEvent      = "event"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr     { return slog.String(KeyRunID, id) }
func RunKey(k string) slog.Attr     { return slog.String(KeyRunKey, k) }
func RunStatus(s string) slog.Attr  { return slog.String(KeyRunStatus, s) }
func Ref(r string) slog.Attr        { return slog.String(KeyRef, r) }
func Commit(sha string) slog.Attr   { return slog.String(KeyCommit, sha) }
func Phase(name string) slog.Attr   { return slog.String(KeyPhase, name) }
func Target(t string) slog.Attr     { return slog.String(KeyTarget, t) }
func Features(f string) slog.Attr   { return slog.String(KeyFeatures, f) }
func Tool(name string) slog.Attr    { return slog.String(KeyTool, name) }
func Branch(b string) slog.Attr     { return slog.String(KeyBranch, b) }
func Path(p string) slog.Attr       { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr        { return slog.String(KeyURL, u) }
func Method(m string) slog.Attr     { return slog.String(KeyMethod, m) }
func RemoteAddr(a string) slog.Attr { return slog.String(KeyRemoteAddr, a) }
func Event(e string) slog.Attr      { return slog.String(KeyEvent, e) }
func Status(code int) slog.Attr     { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr { return slog.String(KeyUserAgent, ua) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Milliseconds()))
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
