package sidecar

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// targetTriples maps GOOS/GOARCH to the triple appended to bundled sidecar binaries.
var targetTriples = map[string]string{
	"windows/amd64": "x86_64-pc-windows-msvc",
	"windows/arm64": "aarch64-pc-windows-msvc",
	"windows/386":   "i686-pc-windows-msvc",
	"darwin/amd64":  "x86_64-apple-darwin",
	"darwin/arm64":  "aarch64-apple-darwin",
	"linux/amd64":   "x86_64-unknown-linux-gnu",
	"linux/arm64":   "aarch64-unknown-linux-gnu",
	"linux/arm":     "armv7-unknown-linux-gnueabihf",
}

// Candidates lists the file names tried, in order, for a bundled binary called name.
func Candidates(name, goos, goarch string) []string {
	suffix := ""
	if goos == "windows" {
		suffix = ".exe"
	}
	candidates := []string{name + suffix}
	if triple, ok := targetTriples[goos+"/"+goarch]; ok {
		candidates = append(candidates, name+"-"+triple+suffix)
	}
	return candidates
}

// Resolve locates the sidecar executable. An explicit path wins; otherwise the
// candidates are looked up in dir (the shell's own directory when empty) and finally
// on PATH.
func Resolve(name, path, dir string) (string, error) {
	if path != "" {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrSidecarNotFound, path, err)
		}
		return resolved, nil
	}

	if dir == "" {
		self, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("failed to locate shell executable: %w", err)
		}
		dir = filepath.Dir(self)
	}

	candidates := Candidates(name, runtime.GOOS, runtime.GOARCH)
	for _, candidate := range candidates {
		if resolved, err := exec.LookPath(filepath.Join(dir, candidate)); err == nil {
			return resolved, nil
		}
	}
	for _, candidate := range candidates {
		if resolved, err := exec.LookPath(candidate); err == nil {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrSidecarNotFound, name, dir)
}
