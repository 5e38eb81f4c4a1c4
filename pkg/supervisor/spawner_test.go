package supervisor_test

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"hive/pkg/supervisor"
)

// TestExecSpawnerRunsRealProcess exercises the exec-backed spawner with sh
// standing in for the external tool: sh <command-file> runs the file as a
// script, which is exactly the calling convention the supervisor uses.
func TestExecSpawnerRunsRealProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "cmd.sh")
	body := "echo out-line\necho err-line 1>&2\nexit 3\n"
	if err := os.WriteFile(script, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	spawner := &supervisor.ExecSpawner{Tool: "sh"}
	proc, err := spawner.Spawn(t.Context(), script, dir)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	var stdout, stderr []string
	outScanner := bufio.NewScanner(proc.Stdout())
	for outScanner.Scan() {
		stdout = append(stdout, outScanner.Text())
	}
	errScanner := bufio.NewScanner(proc.Stderr())
	for errScanner.Scan() {
		stderr = append(stderr, errScanner.Text())
	}

	if err := proc.Wait(); err == nil {
		t.Error("Wait should report the non-zero exit")
	}
	if proc.ExitCode() != 3 {
		t.Errorf("exit code = %d", proc.ExitCode())
	}
	if len(stdout) != 1 || stdout[0] != "out-line" {
		t.Errorf("stdout = %v", stdout)
	}
	if len(stderr) != 1 || stderr[0] != "err-line" {
		t.Errorf("stderr = %v", stderr)
	}
}

func TestExecSpawnerProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}

	// sh --version exits 0 on GNU systems but not everywhere, so only the
	// failure path is checked, with a tool that certainly does not exist.
	bad := &supervisor.ExecSpawner{Tool: filepath.Join(t.TempDir(), "no-such-tool")}
	if err := bad.Probe(t.Context()); err == nil {
		t.Error("probe of missing tool succeeded")
	}
}
