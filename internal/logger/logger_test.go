package logger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestWritersFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}

	outW, errW, err := c.Writers("web")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatal("expected both writers when dir is set")
	}
	defer func() { _ = outW.Close(); _ = errW.Close() }()

	if _, err := outW.Write([]byte("hello stdout\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("hello stderr\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}

	for _, name := range []string{"web.stdout.log", "web.stderr.log"} {
		matches, _ := filepath.Glob(filepath.Join(dir, name))
		if len(matches) != 1 {
			t.Fatalf("capture file %s not created", name)
		}
	}
}

func TestWritersExplicitPathsWinOverDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{
		Dir:        dir,
		StdoutPath: filepath.Join(dir, "custom-out.log"),
	}
	outW, errW, err := c.Writers("web")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	defer func() { _ = outW.Close(); _ = errW.Close() }()

	if _, err := outW.Write([]byte("x\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "custom-out.log"))
	if len(matches) != 1 {
		t.Fatal("explicit stdout path not used")
	}
}

func TestWritersNoneConfigured(t *testing.T) {
	outW, errW, err := Config{}.Writers("web")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatal("no paths configured must yield nil writers")
	}
}

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", false)

	log.Info("hidden")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty", false)

	log.Debug("hidden")
	log.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "visible") {
		t.Fatalf("unexpected output for default level: %q", out)
	}
}

func TestColorHandlerEmitsANSI(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", true)

	log.Error("boom")
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("color handler produced no ANSI escapes: %q", buf.String())
	}
}
