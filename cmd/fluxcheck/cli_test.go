package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"fluxcheck/internal/bitstream"
	"fluxcheck/internal/config"
	"fluxcheck/internal/services"
	"fluxcheck/internal/store"
	"fluxcheck/internal/testsupport"
	"fluxcheck/internal/track"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	helper     *testsupport.FakeHelper
	dir        string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("FLUXCHECK_CAPS_HELPER", "")

	configPath := filepath.Join(base, "fluxcheck.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		helper:     testsupport.NewFakeHelper(cliRawTrack(2, 1)),
		dir:        base,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func cliRawTrack(cylinder, head int) *track.RawTrack {
	const n = 3200
	rng := rand.New(rand.NewPCG(5, 7))
	cells := make([]byte, n)
	for i := range cells {
		if i%3 == 0 || rng.IntN(4) == 0 {
			cells[i] = 1
		}
	}
	return &track.RawTrack{
		Cylinder: cylinder,
		Head:     head,
		Buffer:   bitstream.FromCells(cells).Bytes(),
		BitLen:   n,
		Overlap:  100,
		Sectors:  []track.Range{{Start: 300, Length: 1000}, {Start: 1500, Length: 1000}},
		Weak:     []track.Range{{Start: 1800, Length: 48}},
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(withExecutor(e.helper))
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", substr, output)
	}
}

func TestInfoCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "info", "/images/game.ipf")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	requireContains(t, out, "1234 (rev 1)")
	requireContains(t, out, "Amiga")
	requireContains(t, out, "0-83")

	out, err = env.run(t, "--json", "info", "/images/game.ipf")
	if err != nil {
		t.Fatalf("info --json: %v", err)
	}
	var decoded struct {
		Image         string   `json:"image"`
		MaxCylinder   int      `json:"max_cylinder"`
		PlatformNames []string `json:"platform_names"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if decoded.Image != "/images/game.ipf" || decoded.MaxCylinder != 83 || len(decoded.PlatformNames) != 1 {
		t.Fatalf("unexpected info json: %+v", decoded)
	}
}

func TestInfoPlatformCheck(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "info", "/images/game.ipf", "--platform", "AMIGA")
	if err != nil {
		t.Fatalf("info --platform AMIGA: %v", err)
	}
	requireContains(t, out, "1234 (rev 1)")

	for _, name := range []string{"atari st", "Commodore 128"} {
		_, err := env.run(t, "info", "/images/game.ipf", "--platform", name)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("platform %q: expected validation error, got %v", name, err)
		}
		if services.ExitCode(err) != 3 {
			t.Fatalf("platform %q: exit code = %d", name, services.ExitCode(err))
		}
	}
}

func TestTrackCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "--json", "track", "/images/game.ipf", "--cyl", "2", "--head", "1")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	var decoded trackOutput
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if decoded.Bits != 3200 || decoded.SpliceOffset != 100 {
		t.Fatalf("unexpected track: %+v", decoded)
	}
	if decoded.Sectors[0].Start != 200 || decoded.Weak[0].Start != 1700 {
		t.Fatalf("ranges not splice relative: %+v %+v", decoded.Sectors, decoded.Weak)
	}
	want := []track.Range{{Start: 200, Length: 1000}, {Start: 1400, Length: 300}, {Start: 1764, Length: 636}}
	if len(decoded.Strong) != len(want) {
		t.Fatalf("strong ranges = %v, want %v", decoded.Strong, want)
	}
	for i := range want {
		if decoded.Strong[i] != want[i] {
			t.Fatalf("strong ranges = %v, want %v", decoded.Strong, want)
		}
	}
}

func TestTrackCommandMissingTrack(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "track", "/images/game.ipf", "--cyl", "5")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSimulateThenVerify(t *testing.T) {
	env := setupCLITestEnv(t)
	good := filepath.Join(env.dir, "good.flux")
	bad := filepath.Join(env.dir, "bad.flux")

	out, err := env.run(t, "simulate", "/images/game.ipf", good, "--cyl", "2", "--head", "1", "--lead-in", "200")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	requireContains(t, out, "Wrote 2 revolutions")

	out, err = env.run(t, "verify", "/images/game.ipf", good, "--cyl", "2", "--head", "1")
	if err != nil {
		t.Fatalf("verify good: %v", err)
	}
	requireContains(t, out, "PASS")
	requireContains(t, out, "3/3 ranges")

	if _, err := env.run(t, "simulate", "/images/game.ipf", bad, "--cyl", "2", "--head", "1", "--flip", "1500:8"); err != nil {
		t.Fatalf("simulate flipped: %v", err)
	}
	out, err = env.run(t, "verify", "/images/game.ipf", bad, "--cyl", "2", "--head", "1")
	if !errors.Is(err, errMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	requireContains(t, out, "FAIL")
	requireContains(t, out, "[1400,1700)")

	st := testsupport.MustOpenStore(t, env.cfg, store.ReadOnly())
	records, err := st.List(t.Context(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || records[0].Matched || !records[1].Matched {
		t.Fatalf("unexpected history: %+v", records)
	}

	out, err = env.run(t, "history", "--image", "/images/game.ipf")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "FAIL")
	requireContains(t, out, "2.1")
}

func TestVerifyNoRecord(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithRecordResults(false))
	capture := filepath.Join(env.dir, "c.flux")
	if _, err := env.run(t, "simulate", "/images/game.ipf", capture, "--cyl", "2", "--head", "1"); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	out, err := env.run(t, "--json", "verify", "/images/game.ipf", capture, "--cyl", "2", "--head", "1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	var decoded struct {
		Matched  bool `json:"matched"`
		Recorded bool `json:"recorded"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if !decoded.Matched || decoded.Recorded {
		t.Fatalf("unexpected verify json: %+v", decoded)
	}

	out, err = env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No verifications recorded")
}

func TestVerifyMissingCapture(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "verify", "/images/game.ipf", filepath.Join(env.dir, "none.flux"), "--cyl", "2", "--head", "1")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if services.ExitCode(err) != 1 {
		t.Fatalf("exit code = %d", services.ExitCode(err))
	}
}

func TestHelperFailureExitCode(t *testing.T) {
	env := setupCLITestEnv(t)
	env.helper.Failures["load"] = "file not found"
	_, err := env.run(t, "info", "/images/missing.ipf")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if services.ExitCode(err) != 4 {
		t.Fatalf("exit code = %d", services.ExitCode(err))
	}
}

func TestSimulateRejectsBadFlip(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, flip := range []string{"12", "a:3", "5:0", "3190:20"} {
		_, err := env.run(t, "simulate", "/images/game.ipf", filepath.Join(env.dir, "x.flux"), "--cyl", "2", "--head", "1", "--flip", flip)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("flip %q: expected validation error, got %v", flip, err)
		}
	}
}

func TestDepsCommand(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	out, err := env.run(t, "deps")
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "Track helper")
	requireContains(t, out, "read/write ok")

	missing := setupCLITestEnv(t, testsupport.WithHelperBinary("no-such-helper-binary"))
	_, err = missing.run(t, "deps")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.dir, "generated", "config.toml")
	out, err := env.run(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, target)

	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, err := env.run(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, err = env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, env.configPath)
	requireContains(t, out, "Configuration valid")
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	if err := os.WriteFile(env.cfg.LogPath(), []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, err := env.run(t, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "first") {
		t.Fatalf("expected only the last two lines, got %q", out)
	}
	requireContains(t, out, "second\nthird\n")
}
