package main

import (
	"testing"

	"github.com/selcuk9494/react-sub001/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestParseFlagsDefaultsToPort(t *testing.T) {
	opts, cfg, err := parseFlags(nil, config.Config{Port: "9000"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.addr != ":9000" || opts.mock || cfg.ForceMock {
		t.Fatalf("unexpected options %+v cfg.ForceMock=%v", opts, cfg.ForceMock)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	opts, cfg, err := parseFlags([]string{"--addr", "127.0.0.1:7000", "--mock"}, config.Config{Port: "9000"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.addr != "127.0.0.1:7000" {
		t.Fatalf("expected addr override, got %q", opts.addr)
	}
	if !cfg.ForceMock {
		t.Fatalf("expected --mock to force mock mode")
	}
}

func TestParseFlagsRejectsUnknown(t *testing.T) {
	if _, _, err := parseFlags([]string{"--nope"}, config.Config{Port: "9000"}); err == nil {
		t.Fatalf("expected unknown flag to fail")
	}
}
