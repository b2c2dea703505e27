package caps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"fluxcheck/internal/logging"
	"fluxcheck/internal/services"
	"fluxcheck/internal/track"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger used for teardown warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps the track-decoding helper. Every helper operation runs as a
// separate invocation that prints robot lines on stdout.
type Client struct {
	binary      string
	callTimeout time.Duration
	exec        Executor
	logger      *slog.Logger
}

// New constructs a helper client.
func New(binary string, callTimeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("caps helper binary required")
	}
	client := &Client{
		binary:      binary,
		callTimeout: time.Duration(callTimeoutSeconds) * time.Second,
		exec:        commandExecutor{},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "caps")
	return client, nil
}

// Binary returns the helper executable name.
func (c *Client) Binary() string { return c.binary }

// Open loads an image through the helper and reads its metadata. The caller
// owns the returned Image and must Close it.
func (c *Client) Open(ctx context.Context, path string) (*Image, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, "caps", "load", "image path required", nil)
	}
	lines, err := c.call(ctx, "load", path)
	if err != nil {
		return nil, err
	}
	var info *ImageInfo
	for _, line := range lines {
		payload, ok := strings.CutPrefix(line, "IMG:")
		if !ok {
			continue
		}
		parsed, err := parseImageInfo(payload)
		if err != nil {
			return nil, wrapCall(&CallError{Op: "load", Code: -1, Detail: err.Error()})
		}
		info = parsed
	}
	if info == nil {
		return nil, wrapCall(&CallError{Op: "load", Code: -1, Detail: "no image metadata in helper output"})
	}
	return &Image{client: c, path: path, info: *info}, nil
}

// call runs one helper operation and returns its robot lines. ERR lines and
// non-zero exits both surface as a CallError.
func (c *Client) call(ctx context.Context, op string, args ...string) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	var lines []string
	var callErr *CallError
	runErr := c.exec.Run(callCtx, c.binary, append([]string{"--robot", op}, args...), func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if payload, ok := strings.CutPrefix(line, "ERR:"); ok {
			if callErr == nil {
				callErr = parseCallError(op, payload)
			}
			return
		}
		lines = append(lines, line)
	})
	if callErr != nil {
		return nil, wrapCall(callErr)
	}
	if runErr != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "caps", op, fmt.Sprintf("helper exceeded %s", c.callTimeout), runErr)
		}
		return nil, wrapCall(&CallError{Op: op, Code: -1, Detail: runErr.Error(), Err: runErr})
	}
	return lines, nil
}

func wrapCall(err *CallError) error {
	return services.Wrap(services.ErrExternalTool, "caps", err.Op, "helper call failed", err)
}

// Image is an image loaded into the helper. It is a scoped resource: Close
// releases everything the helper holds for it.
type Image struct {
	client *Client
	path   string
	info   ImageInfo

	mu     sync.Mutex
	closed bool
}

// Path returns the image path the helper was given.
func (img *Image) Path() string { return img.path }

// Info returns the image metadata read at load time.
func (img *Image) Info() ImageInfo { return img.info }

// Track fetches one track. It returns nil without error when the
// cylinder/head lies outside the image or the track is unformatted.
func (img *Image) Track(ctx context.Context, cylinder, head int) (*track.RawTrack, error) {
	img.mu.Lock()
	closed := img.closed
	img.mu.Unlock()
	if closed {
		return nil, services.Wrap(services.ErrValidation, "caps", "lock", "image already closed", nil)
	}
	if !img.info.HasTrack(cylinder, head) {
		return nil, nil
	}

	ref := fmt.Sprintf("%d.%d", cylinder, head)
	lines, err := img.client.call(ctx, "lock", img.path, ref)
	if err != nil {
		return nil, err
	}
	raw, err := parseTrack(lines)
	if err != nil {
		return nil, wrapCall(&CallError{Op: "lock", Code: -1, Detail: err.Error()})
	}
	if _, err := img.client.call(ctx, "unlock", img.path, ref); err != nil {
		return nil, err
	}
	if raw.Cylinder != cylinder || raw.Head != head {
		return nil, wrapCall(&CallError{Op: "lock", Code: -1, Detail: fmt.Sprintf("helper returned track %d.%d for %s", raw.Cylinder, raw.Head, ref)})
	}
	if raw.Buffer == nil {
		return nil, nil
	}
	return raw, nil
}

// Close releases the image in the helper. Teardown failures are logged and
// never returned; calling Close more than once is a no-op.
func (img *Image) Close(ctx context.Context) {
	img.mu.Lock()
	if img.closed {
		img.mu.Unlock()
		return
	}
	img.closed = true
	img.mu.Unlock()

	logger := logging.WithContext(ctx, img.client.logger)
	for _, op := range []string{"unlock-all", "unlock-image", "release"} {
		if _, err := img.client.call(ctx, op, img.path); err != nil {
			logging.WarnWithContext(logger, "helper teardown failed", "caps_teardown_failed",
				logging.String("op", op),
				logging.String(logging.FieldImage, img.path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the helper binary and its library installation"),
				logging.String(logging.FieldImpact, "helper resources may stay allocated until it exits"),
			)
		}
	}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	scanErr := scanLines(stdout, onStdout)
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("wait command: %w: %s", err, msg)
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

// BUF lines carry whole tracks as hex, well past bufio's default token size.
const maxLineBytes = 4 << 20

func scanLines(r io.Reader, forward func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if forward != nil {
			forward(scanner.Text())
		}
	}
	return scanner.Err()
}
