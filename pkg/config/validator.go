package config

import (
	"fmt"
	"strings"
)

// Validator runs the ordered checks described for the ambient
// configuration surface: HTTP, then database, then timers, then calendar.
type Validator struct {
	cfg *Config
}

// NewValidator returns a validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every check and joins all failures into one error
// rather than stopping at the first, so a misconfigured deployment sees
// every problem in one boot attempt.
func (v *Validator) ValidateAll() error {
	var errs []error
	if err := v.validateHTTP(); err != nil {
		errs = append(errs, err)
	}
	if err := v.validateDatabase(); err != nil {
		errs = append(errs, err)
	}
	if err := v.validateTimers(); err != nil {
		errs = append(errs, err)
	}
	if err := v.validateCalendar(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("%d configuration error(s): %s", len(errs), strings.Join(msgs, "; "))
}

func (v *Validator) validateHTTP() error {
	h := v.cfg.HTTP
	if h.ListenAddr == "" {
		return NewFieldError("http", "listen_addr", fmt.Errorf("required"))
	}
	if !strings.HasPrefix(h.MountPath, "/") {
		return NewFieldError("http", "mount_path", fmt.Errorf("must start with '/', got %q", h.MountPath))
	}
	if v.cfg.ResponseTimeoutSeconds <= 0 {
		return NewFieldError("http", "response_timeout_seconds", fmt.Errorf("must be positive, got %d", v.cfg.ResponseTimeoutSeconds))
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d.DSN == "" {
		return NewFieldError("database", "dsn", fmt.Errorf("required"))
	}
	if d.MaxOpenConns < 1 {
		return NewFieldError("database", "max_open_conns", fmt.Errorf("must be at least 1, got %d", d.MaxOpenConns))
	}
	return nil
}

func (v *Validator) validateTimers() error {
	t := v.cfg.Timers
	if t.OneShotPersistPath == "" {
		return NewFieldError("timers", "one_shot_persist_path", fmt.Errorf("required"))
	}
	if t.MisfireGraceSeconds < 0 {
		return NewFieldError("timers", "misfire_grace_seconds", fmt.Errorf("must be non-negative, got %d", t.MisfireGraceSeconds))
	}
	return nil
}

func (v *Validator) validateCalendar() error {
	c := v.cfg.Calendar
	if c.CacheDir == "" {
		return NewFieldError("calendar", "cache_dir", fmt.Errorf("required"))
	}
	if c.FetchTimeoutSeconds <= 0 {
		return NewFieldError("calendar", "fetch_timeout_seconds", fmt.Errorf("must be positive, got %d", c.FetchTimeoutSeconds))
	}
	return nil
}
