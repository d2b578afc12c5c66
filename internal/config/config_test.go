package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := Defaults()
	if c != d {
		t.Fatalf("got %+v, want defaults %+v", c, d)
	}
}

func TestLoad_FileAndEnvLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	err := os.WriteFile(path, []byte("login_port: 9000\nchannels: 4\nsub_version: \"2\"\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("LOGIN_PORT", "9999")
	t.Setenv("TICK_INTERVAL_MS", "20")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.LoginPort != 9999 {
		t.Fatalf("env should win: login_port = %d", c.LoginPort)
	}
	if c.Channels != 4 {
		t.Fatalf("file value lost: channels = %d", c.Channels)
	}
	if c.TickIntervalMs != 20 {
		t.Fatalf("tick_interval_ms = %d", c.TickIntervalMs)
	}
	if c.SubVersion != "2" {
		t.Fatalf("sub_version = %q", c.SubVersion)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("TICK_INTERVAL_MS", "0")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("zero tick interval accepted")
	}
}

func TestLoad_RejectsGarbageEnv(t *testing.T) {
	t.Setenv("CHANNELS", "two")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("non-numeric CHANNELS accepted")
	}
}
