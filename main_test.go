package main

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	if versionCmd == nil {
		t.Fatal("versionCmd is nil")
	}

	if versionCmd.Use != "version" {
		t.Errorf("Unexpected Use: %s", versionCmd.Use)
	}

	if versionCmd.Short != "Print version information" {
		t.Errorf("Unexpected Short: %s", versionCmd.Short)
	}
}

func TestVersionJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionOutputJSON = true
	defer func() { versionOutputJSON = false }()

	if err := versionCmd.RunE(versionCmd, nil); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	var info map[string]any
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("version output is not valid JSON: %v\n%s", err, buf.String())
	}
	if info["service_name"] != "daylog" {
		t.Errorf("unexpected service name: %v", info["service_name"])
	}
}

func TestRootCommandWiring(t *testing.T) {
	want := []string{
		"submit", "cancel", "process", "worker", "report",
		"schedule", "attention", "review", "track", "tickets",
		"db", "version",
	}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered on root", name)
		}
	}
}

func TestGlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "output", "debug"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("--%s flag not found on root command", name)
		}
	}
}
