package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func captureStdout(fn func()) string {
	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()
	return buf.String()
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	out := captureStdout(func() {
		Init(Config{
			Service: "session-service",
			Version: "v0.1.0",
			Env:     EnvDev,
			Backend: BackendStd,
			Level:   slog.LevelDebug,
		})
		slog.Info("hello session")
	})

	if strings.Contains(out, "{") && strings.Contains(out, "}") {
		t.Fatalf("expected text output in dev/std, got JSON: %s", out)
	}
	if !strings.Contains(out, "hello session") {
		t.Fatalf("message missing: %s", out)
	}
	if !strings.Contains(out, "service=session-service") {
		t.Fatalf("service attr missing: %s", out)
	}
	if !strings.Contains(out, "env=dev") {
		t.Fatalf("env attr missing: %s", out)
	}
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	out := captureStdout(func() {
		Init(Config{
			Service: "session-service",
			Env:     EnvProd,
			Backend: BackendZap,
		})
		slog.Info("json line")
	})

	if !strings.Contains(out, "{") || !strings.Contains(out, `"json line"`) {
		t.Fatalf("expected JSON output in prod/zap, got: %s", out)
	}
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if got := DetectEnv(); got != EnvProd {
		t.Fatalf("DetectEnv() = %v, want prod", got)
	}
	t.Setenv("APP_ENV", "staging")
	if got := DetectEnv(); got != EnvStage {
		t.Fatalf("DetectEnv() = %v, want stage", got)
	}
	t.Setenv("APP_ENV", "")
	if got := DetectEnv(); got != EnvDev {
		t.Fatalf("DetectEnv() = %v, want dev", got)
	}
}
