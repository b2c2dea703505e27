package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCaps(); err != nil {
		return err
	}
	if err := c.validateTrack(); err != nil {
		return err
	}
	if err := c.validateVerify(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCaps() error {
	if c.Caps.HelperBinary == "" {
		return errors.New("caps.helper_binary must be set")
	}
	if c.Caps.CallTimeout < 0 {
		return errors.New("caps.call_timeout must be zero or positive")
	}
	return nil
}

func (c *Config) validateTrack() error {
	if c.Track.RPM <= 0 {
		return fmt.Errorf("track.rpm must be positive, got %v", c.Track.RPM)
	}
	if c.Track.NominalCellTime == 0 {
		return errors.New("track.nominal_cell_time must be positive")
	}
	return nil
}

func (c *Config) validateVerify() error {
	if c.Verify.Tolerance < 0 {
		return errors.New("verify.tolerance must be zero or positive")
	}
	if c.Verify.WeakTolerance < 0 {
		return errors.New("verify.weak_tolerance must be zero or positive")
	}
	if c.Verify.Revolutions <= 0 {
		return errors.New("verify.revolutions must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
