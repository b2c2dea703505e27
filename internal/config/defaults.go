package config

const (
	defaultStateDir        = "~/.local/share/fluxcheck"
	defaultLogDir          = "~/.local/share/fluxcheck/logs"
	defaultHelperBinary    = "ipfhelper"
	defaultCallTimeout     = 30
	defaultRPM             = 300
	defaultNominalCellTime = 1000
	defaultTolerance       = 100
	defaultWeakTolerance   = 16
	defaultRevolutions     = 2
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"

	helperBinaryEnv = "FLUXCHECK_CAPS_HELPER"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Caps: Caps{
			HelperBinary: defaultHelperBinary,
			CallTimeout:  defaultCallTimeout,
		},
		Track: Track{
			RPM:             defaultRPM,
			NominalCellTime: defaultNominalCellTime,
		},
		Verify: Verify{
			Tolerance:     defaultTolerance,
			WeakTolerance: defaultWeakTolerance,
			Revolutions:   defaultRevolutions,
			RecordResults: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
