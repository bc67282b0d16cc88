package cmdutils

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/internal/serviceerr"
)

// validateConfig rejects a configuration the session client cannot run with.
// All problems are reported at once.
func validateConfig(cfg *config.Config) error {
	var errs []error

	if err := absoluteURL(cfg.Target.BaseURL); err != nil {
		errs = append(errs, invalid("target.baseURL", err))
	}

	if cfg.Target.LoginURL != "" {
		if err := absoluteURL(cfg.Target.LoginURL); err != nil {
			errs = append(errs, invalid("target.loginURL", err))
		}
	}

	switch cfg.Marker.Type {
	case config.MarkerTypeMemory, config.MarkerTypeValkey, "":
	default:
		errs = append(errs, invalid("marker.type", fmt.Errorf("unknown marker type %q", cfg.Marker.Type)))
	}

	if cfg.Auth.RenewTimeout < 0 || cfg.Auth.ExpiryBuffer < 0 {
		errs = append(errs, invalid("auth", errors.New("durations must not be negative")))
	}

	if len(cfg.Probe.Paths) == 0 {
		errs = append(errs, invalid("probe.paths", errors.New("at least one path is required")))
	}

	if cfg.Probe.RatePerSecond < 0 {
		errs = append(errs, invalid("probe.ratePerSecond", errors.New("must not be negative")))
	}

	return errors.Join(errs...)
}

func absoluteURL(raw string) error {
	if raw == "" {
		return errors.New("required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}

	return nil
}

func invalid(field string, err error) error {
	return &serviceerr.Error{
		Err:         serviceerr.CodeInvalidConfiguration,
		Description: fmt.Sprintf("%s: %v", field, err),
	}
}
