package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/slotclaim/internal/retry"
)

// Error is a single invalid or missing setting.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Key, e.Reason) }

// Lookup returns the value for key, or "" when unset.
type Lookup func(key string) string

// Env reads the process environment, trimming whitespace.
func Env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

// Chain returns the first non-empty value from lookups, in order.
func Chain(lookups ...Lookup) Lookup {
	return func(key string) string {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v := strings.TrimSpace(l(key)); v != "" {
				return v
			}
		}
		return ""
	}
}

// CronParser accepts an optional leading seconds field and CRON_TZ/TZ prefixes.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is either a cron expression or a set of date components. A nil
// component means "every".
type Schedule struct {
	Cron     string
	Location *time.Location

	Second, Minute, Hour, Date, Month, Year *int
}

func (s Schedule) IsCron() bool { return s.Cron != "" }

type Workflow struct {
	Schedule Schedule
	Retry    retry.Config
}

type Config struct {
	Username string
	Password string

	SignupURL           string
	TryGroups           []string
	DefaultToFirstGroup bool
	Locale              string

	Prelogin Workflow
	Signup   Workflow

	DryRun bool

	// browser
	Headless       bool
	BrowserTimeout time.Duration
	StateFile      string
	StateHashKey   []byte
	StateBlockKey  []byte

	// run history, optional
	DatabaseURL string

	// status endpoint, optional
	StatusAddr         string
	StatusUser         string
	StatusPasswordHash []byte

	LogLevel  slog.Level
	LogFormat string
}

type loader struct {
	get  Lookup
	errs []error
}

func (l *loader) fail(key, format string, args ...any) {
	l.errs = append(l.errs, &Error{Key: key, Reason: fmt.Sprintf(format, args...)})
}

func (l *loader) required(key string) string {
	v := l.get(key)
	if v == "" {
		l.fail(key, "is required")
	}
	return v
}

// first returns the value of the first key that is set.
func (l *loader) first(keys ...string) (string, string) {
	for _, k := range keys {
		if v := l.get(k); v != "" {
			return k, v
		}
	}
	return keys[0], ""
}

func (l *loader) boolean(key string, def bool) bool {
	v := l.get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fail(key, "invalid boolean %q", v)
		return def
	}
	return b
}

func (l *loader) integer(key string, def, min int) int {
	v := l.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, "invalid integer %q", v)
		return def
	}
	if n < min {
		l.fail(key, "must be >= %d (got %d)", min, n)
		return def
	}
	return n
}

// Load builds the configuration from get and validates all of it. Every
// problem is reported, joined into one error of *Error values.
func Load(get Lookup) (Config, error) {
	if get == nil {
		get = Env
	}
	l := &loader{get: get}

	cfg := Config{
		Username:            l.required("LOGIN_USERNAME"),
		Password:            l.required("LOGIN_PASSWORD"),
		DefaultToFirstGroup: l.boolean("SIGNUP_DEFAULT_TO_FIRST_GROUP", false),
		DryRun:              l.boolean("DRY_RUN", false),
		Headless:            l.boolean("HEADLESS", true),
		BrowserTimeout:      time.Duration(l.integer("BROWSER_TIMEOUT_MS", 30000, 1)) * time.Millisecond,
		DatabaseURL:         get("DATABASE_URL"),
		StatusAddr:          get("STATUS_ADDR"),
		LogFormat:           strings.ToLower(get("LOG_FORMAT")),
	}

	urlKey, raw := l.first("SIGNUP_URL", "URL")
	if raw == "" {
		l.fail(urlKey, "is required")
	} else if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		l.fail(urlKey, "must be an absolute http(s) URL (got %q)", raw)
	}
	cfg.SignupURL = raw

	groupsKey, groups := l.first("SIGNUP_TRY_GROUPS", "TRY_GROUPS")
	cfg.TryGroups = SplitCSV(groups)
	if len(cfg.TryGroups) == 0 {
		l.fail(groupsKey, "must list at least one group")
	}

	switch loc := strings.ToLower(get("LOCALE")); loc {
	case "", "en", "de":
		cfg.Locale = loc
	default:
		l.fail("LOCALE", "must be en or de (got %q)", loc)
	}

	cfg.Prelogin = l.workflow("PRELOGIN", retry.Config{Interval: 5 * time.Second, MaxAttempts: 5})
	cfg.Signup = l.workflow("SIGNUP", retry.Config{Interval: time.Second, MaxAttempts: 10})

	l.state(&cfg)
	l.status(&cfg)

	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		l.fail("LOG_FORMAT", "must be text or json (got %q)", cfg.LogFormat)
	}
	if v := get("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			l.fail("LOG_LEVEL", "invalid level %q", v)
		}
	}

	if len(l.errs) > 0 {
		return cfg, errors.Join(l.errs...)
	}
	return cfg, nil
}

func (l *loader) workflow(prefix string, def retry.Config) Workflow {
	w := Workflow{Retry: retry.Config{
		Interval:    time.Duration(l.integer(prefix+"_RETRY_INTERVAL", int(def.Interval/time.Millisecond), 0)) * time.Millisecond,
		MaxAttempts: l.integer(prefix+"_RETRY_MAX", def.MaxAttempts, 1),
	}}

	w.Schedule.Location = time.Local
	if tz := l.get(prefix + "_TZ"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			l.fail(prefix+"_TZ", "unknown time zone %q", tz)
		} else {
			w.Schedule.Location = loc
		}
	}

	fields := []struct {
		name     string
		dst      **int
		min, max int
	}{
		{"SECOND", &w.Schedule.Second, 0, 59},
		{"MINUTE", &w.Schedule.Minute, 0, 59},
		{"HOUR", &w.Schedule.Hour, 0, 23},
		{"DATE", &w.Schedule.Date, 1, 31},
		{"MONTH", &w.Schedule.Month, 1, 12},
		{"YEAR", &w.Schedule.Year, 1970, 9999},
	}
	anyField := false
	for _, f := range fields {
		key := prefix + "_" + f.name
		v := l.get(key)
		if v == "" {
			continue
		}
		anyField = true
		n, err := strconv.Atoi(v)
		if err != nil || n < f.min || n > f.max {
			l.fail(key, "must be an integer in [%d, %d] (got %q)", f.min, f.max, v)
			continue
		}
		*f.dst = &n
	}

	w.Schedule.Cron = l.get(prefix + "_CRON")
	switch {
	case w.Schedule.Cron != "" && anyField:
		l.fail(prefix+"_CRON", "set either %s_CRON or date components, not both", prefix)
	case w.Schedule.Cron != "":
		if _, err := CronParser.Parse(w.Schedule.Cron); err != nil {
			l.fail(prefix+"_CRON", "invalid cron expression: %v", err)
		}
	case !anyField:
		l.fail(prefix+"_CRON", "is required (or set %s_SECOND..%s_YEAR)", prefix, prefix)
	}
	return w
}

func (l *loader) state(cfg *Config) {
	cfg.StateFile = l.get("STATE_FILE")
	if cfg.StateFile == "" {
		return
	}
	var err error
	if cfg.StateHashKey, err = decodeB64(l.required("STATE_HASH_KEY")); err != nil {
		l.fail("STATE_HASH_KEY", "invalid base64: %v", err)
	} else if len(cfg.StateHashKey) > 0 && len(cfg.StateHashKey) < 32 {
		l.fail("STATE_HASH_KEY", "must decode to at least 32 bytes (got %d)", len(cfg.StateHashKey))
	}
	if cfg.StateBlockKey, err = decodeB64(l.required("STATE_BLOCK_KEY")); err != nil {
		l.fail("STATE_BLOCK_KEY", "invalid base64: %v", err)
	} else if n := len(cfg.StateBlockKey); n > 0 && n != 16 && n != 24 && n != 32 {
		l.fail("STATE_BLOCK_KEY", "must decode to 16, 24 or 32 bytes (got %d)", n)
	}
}

func (l *loader) status(cfg *Config) {
	if cfg.StatusAddr == "" {
		return
	}
	cfg.StatusUser = l.required("STATUS_USER")
	hash := l.required("STATUS_PASSWORD_BCRYPT")
	if hash == "" {
		return
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		l.fail("STATUS_PASSWORD_BCRYPT", "not a bcrypt hash: %v", err)
		return
	}
	cfg.StatusPasswordHash = []byte(hash)
}

// SplitCSV splits a comma separated list, trimming entries and dropping
// empty ones. Order is preserved.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func decodeB64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
