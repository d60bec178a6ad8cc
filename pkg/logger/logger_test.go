package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestInitFormats(t *testing.T) {
	var buf bytes.Buffer

	if err := Init(Options{Level: "debug", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("json init failed: %v", err)
	}
	Get().Info(context.Background(), "hello", String("k", "v"))
	if out := buf.String(); !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("unexpected json output: %s", out)
	}

	buf.Reset()
	if err := Init(Options{Level: "info", Format: "text", Output: &buf}); err != nil {
		t.Fatalf("text init failed: %v", err)
	}
	Get().Info(context.Background(), "hello", Int("n", 3), Duration("d", time.Second))
	if out := buf.String(); !strings.Contains(out, "msg=hello") || !strings.Contains(out, "n=3") {
		t.Fatalf("unexpected text output: %s", out)
	}

	if err := Init(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if err := Init(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Level: "warn", Format: "text", Output: &buf}); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "dropped")
	Get().Warn(ctx, "kept", Bool("flag", true))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info entry should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn entry missing: %s", out)
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("set level failed: %v", err)
	}
	Get().Debug(ctx, "now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatal("debug entry missing after level change")
	}
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Format: "text", Output: &buf}); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	Named("engine").Info(context.Background(), "started", String("addr", ":8080"))
	if out := buf.String(); !strings.Contains(out, "engine.addr=:8080") {
		t.Fatalf("named group missing from output: %s", out)
	}
}
