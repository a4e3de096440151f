package deps_test

import (
	"os"
	"path/filepath"
	"testing"

	"audiosift/internal/deps"
)

func TestCheckBinariesReportsMissing(t *testing.T) {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "ghost", Command: "definitely-not-a-real-binary-xyz"},
	})
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if statuses[0].Available {
		t.Fatal("missing binary reported as available")
	}
	if statuses[0].Detail == "" {
		t.Fatal("expected a detail message for missing binary")
	}
}

func TestCheckBinariesFindsStub(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "stubtool")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "stubtool", Command: "stubtool"},
	})
	if !statuses[0].Available {
		t.Fatalf("expected stub to be found: %#v", statuses[0])
	}
}

func TestCheckBinariesEmptyCommand(t *testing.T) {
	statuses := deps.CheckBinaries([]deps.Requirement{{Name: "none", Command: "  "}})
	if statuses[0].Available || statuses[0].Detail != "command not configured" {
		t.Fatalf("unexpected status: %#v", statuses[0])
	}
}
