package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dnsops/zonebot/internal/store"
)

func TestRunVersionText(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if err := run(context.Background(), &stdout, &stderr, []string{"version"}); err != nil {
		t.Fatalf("run version: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "zonebot") {
		t.Errorf("version output missing program name:\n%s", out)
	}
	if !strings.Contains(out, "go_version:") {
		t.Errorf("version output missing build fields:\n%s", out)
	}
}

func TestRunVersionJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if err := run(context.Background(), &stdout, &stderr, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run version: %v", err)
	}

	var info map[string]string
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		t.Fatalf("version JSON invalid: %v\n%s", err, stdout.String())
	}
	for _, k := range []string{"version", "go_version", "os", "arch"} {
		if info[k] == "" {
			t.Errorf("version JSON missing %q: %v", k, info)
		}
	}
}

func TestRunUsageWithNoArguments(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if err := run(context.Background(), &stdout, &stderr, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "Usage:") {
		t.Errorf("expected usage text:\n%s", stdout.String())
	}
}

func TestRunThreads(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, "zonebot.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	st, err := store.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := st.Claim("C0000001", "thread_abc123"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	db.Close()

	cfgPath := filepath.Join(dir, "zonebot.yaml")
	cfgYAML := fmt.Sprintf("data_dir: %s\n", dataDir)
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", cfgPath, "threads"}); err != nil {
		t.Fatalf("run threads: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "C0000001") || !strings.Contains(out, "thread_abc123") {
		t.Errorf("threads output missing channel mapping:\n%s", out)
	}
}

func TestRunArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantSub string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"unknown flag", []string{"-bogus"}, "unknown flag"},
		{"bad output format", []string{"-o", "xml", "version"}, "unknown output format"},
		{"ask without question", []string{"ask"}, "usage: zonebot ask"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), &stdout, &stderr, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("run(%v) err = %v, want substring %q", tt.args, err, tt.wantSub)
			}
		})
	}
}
