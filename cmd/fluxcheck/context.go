package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fluxcheck/internal/config"
	"fluxcheck/internal/logging"
	"fluxcheck/internal/services"
	"fluxcheck/internal/services/caps"
	"fluxcheck/internal/track"
	"fluxcheck/internal/trackio"
)

type contextOption func(*commandContext)

// withExecutor replaces the helper process runner, for tests.
func withExecutor(exec caps.Executor) contextOption {
	return func(c *commandContext) {
		c.executor = exec
	}
}

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	jsonFlag     *bool
	executor     caps.Executor

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string, jsonFlag *bool, opts ...contextOption) *commandContext {
	c := &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		jsonFlag:     jsonFlag,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if level := c.logLevel(); level != "" {
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// requestContext tags the command's context with a fresh correlation ID.
func (c *commandContext) requestContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return services.WithRequestID(ctx, uuid.NewString())
}

func (c *commandContext) newLoader() (*trackio.Loader, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	opts := []caps.Option{caps.WithLogger(logger)}
	if c.executor != nil {
		opts = append(opts, caps.WithExecutor(c.executor))
	}
	client, err := caps.New(cfg.HelperBinary(), cfg.Caps.CallTimeout, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "caps", "init", "", err)
	}
	return trackio.NewLoader(client, logger,
		track.WithRPM(cfg.Track.RPM),
		track.WithNominalCellTime(cfg.Track.NominalCellTime),
	), nil
}

func (c *commandContext) newVerifier(toleranceOverride int) (*track.Verifier, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	tolerance := cfg.Verify.Tolerance
	if toleranceOverride >= 0 {
		tolerance = toleranceOverride
	}
	return track.NewVerifier(
		track.WithTolerance(tolerance),
		track.WithWeakTolerance(cfg.Verify.WeakTolerance),
	), nil
}

// loadTrack fetches a track and turns an empty result into an error.
func (c *commandContext) loadTrack(ctx context.Context, image string, cylinder, head int) (*track.Track, *caps.ImageInfo, error) {
	loader, err := c.newLoader()
	if err != nil {
		return nil, nil, err
	}
	t, info, err := loader.LoadTrack(ctx, image, cylinder, head)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, info, services.Wrap(services.ErrNotFound, "track", logging.TrackLabel(cylinder, head),
			fmt.Sprintf("track is empty or outside cylinders %d-%d heads %d-%d",
				info.MinCylinder, info.MaxCylinder, info.MinHead, info.MaxHead), nil)
	}
	return t, info, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func addTrackFlags(cmd *cobra.Command, cylinder, head *int) {
	cmd.Flags().IntVar(cylinder, "cyl", 0, "Cylinder number")
	cmd.Flags().IntVar(head, "head", 0, "Head number")
}
