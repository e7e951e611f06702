package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/internal/config"
)

// runCLI executes the root command with args against an empty home
// directory and returns what it wrote to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, config.EnvPrefix) {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}

	configPath, aliasFlag, pathFlag, logLevel, logFormat, metricsFile, requestID = "", "", "", "none", "", "", ""
	fieldFlag, columnsFlag, maskFlag, maskDTypeFlag, maskSizeFlag = "", "", "", "", -1
	outFlag, dictFlag, unitsFlag = "", false, ""
	inspectAttrs, inspectDepth = false, 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFilepathCommand(t *testing.T) {
	out, err := runCLI(t, "filepath", "--path", "/data/runs/../snap_0001.hdf5", "--log-level", "none")
	if err != nil {
		t.Fatalf("filepath: %v", err)
	}
	if strings.TrimSpace(out) != "/data/snap_0001.hdf5" {
		t.Fatalf("filepath printed %q", out)
	}
}

func TestFilepathCommand_UnknownAlias(t *testing.T) {
	_, err := runCLI(t, "filepath", "--alias", "nope", "--log-level", "none")
	if !apierr.Has(err, apierr.DatasetNotFound) {
		t.Fatalf("expected DatasetNotFound, got %v", err)
	}
	if exitCode(err) != exitNotFound {
		t.Fatalf("exit code = %d", exitCode(err))
	}
}

func TestCommand_RequiresReference(t *testing.T) {
	_, err := runCLI(t, "units", "--log-level", "none")
	if err == nil || !strings.Contains(err.Error(), "--alias or --path") {
		t.Fatalf("expected reference error, got %v", err)
	}
}

func TestAliasesCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	p := filepath.Join(t.TempDir(), "swiftserve.yaml")
	if err := os.WriteFile(p, []byte("datasets:\n  b_run: /data/b.hdf5\n  a_run: /data/a.hdf5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "aliases", "--config", p, "--log-level", "none")
	if err != nil {
		t.Fatalf("aliases: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "a_run") || !strings.Contains(lines[1], "/data/b.hdf5") {
		t.Fatalf("unexpected aliases output:\n%s", out)
	}
}

func testSnapshot(t *testing.T) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("..", "..", "testdata", "snapshot.h5"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); os.IsNotExist(err) {
		t.Skip("test file snapshot.h5 not found. Run 'python3 testdata/generate.py'")
	}
	return p
}

func TestMaskedCommand(t *testing.T) {
	p := testSnapshot(t)
	out, err := runCLI(t, "masked", "--path", p, "--field", "PartType0/Masses", "--mask", "[[0, 334]]", "--log-level", "none")
	if err != nil {
		t.Fatalf("masked: %v", err)
	}
	var got struct {
		Array []float64 `json:"array"`
		DType string    `json:"dtype"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if len(got.Array) != 334 {
		t.Fatalf("got %d rows, want 334", len(got.Array))
	}
}

func TestMaskedCommand_FieldNotFound(t *testing.T) {
	p := testSnapshot(t)
	_, err := runCLI(t, "masked", "--path", p, "--field", "PartType0/Nope", "--mask", "[[0, 3]]", "--log-level", "none")
	if !apierr.Has(err, apierr.FieldNotFound) {
		t.Fatalf("expected FieldNotFound, got %v", err)
	}
}

func TestInspectCommand(t *testing.T) {
	p := testSnapshot(t)
	out, err := runCLI(t, "inspect", "--path", p, "--attrs", "--log-level", "none")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"/PartType0/", "Masses", "/Header@BoxSize = "} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestMetadataCommand_WritesBlob(t *testing.T) {
	p := testSnapshot(t)
	blob := filepath.Join(t.TempDir(), "meta.bin")
	if _, err := runCLI(t, "metadata", "--path", p, "--out", blob, "--log-level", "none"); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	fi, err := os.Stat(blob)
	if err != nil || fi.Size() == 0 {
		t.Fatalf("blob not written: %v", err)
	}
}
