package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionInfo(t *testing.T) {
	t.Parallel()

	// Each falls back to a placeholder when build info is missing.
	for name, got := range map[string]string{
		"version": getVersion(),
		"commit":  getCommit(),
		"date":    getDate(),
	} {
		if got == "" {
			t.Errorf("%s returned empty string", name)
		}
	}

	if got := buildSetting("no.such.setting"); got != "unknown" {
		t.Errorf("buildSetting() = %q, want unknown", got)
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"medcrawl version", "commit:", "built:"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got %q", want, output)
		}
	}
}
