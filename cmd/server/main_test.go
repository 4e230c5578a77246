package main

import (
	"os"
	"testing"

	"github.com/sentinelrag/sentinel/internal/config"
)

func TestGetPort_Default(t *testing.T) {
	os.Unsetenv("PORT")
	if got := getPort(nil); got != "8080" {
		t.Errorf("getPort(nil) = %q, want %q", got, "8080")
	}
}

func TestGetPort_FromEnv(t *testing.T) {
	t.Setenv("PORT", "3000")
	if got := getPort(nil); got != "3000" {
		t.Errorf("getPort(nil) = %q, want %q", got, "3000")
	}
}

func TestGetPort_FromConfig(t *testing.T) {
	os.Unsetenv("PORT")
	cfg := &config.Config{Port: 9090}
	if got := getPort(cfg); got != "9090" {
		t.Errorf("getPort(cfg) = %q, want %q", got, "9090")
	}
}

func TestGetPort_EnvOverridesConfig(t *testing.T) {
	t.Setenv("PORT", "3000")
	cfg := &config.Config{Port: 9090}
	if got := getPort(cfg); got != "3000" {
		t.Errorf("getPort(cfg) = %q, want %q", got, "3000")
	}
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version must not be empty")
	}
}
