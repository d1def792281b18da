package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	serverBinary       = "axolutly-server"
	serverStartTimeout = 10 * time.Second
	serverPollInterval = 200 * time.Millisecond
)

// isServerRunning checks if the server answers its health check
func isServerRunning() bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findServerBinary looks next to the CLI, then on PATH, then in the usual
// install locations
func findServerBinary() (string, error) {
	var candidates []string
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), serverBinary))
	}
	if p, err := exec.LookPath(serverBinary); err == nil {
		return p, nil
	}
	home, _ := os.UserHomeDir()
	candidates = append(candidates,
		filepath.Join("/usr/local/bin", serverBinary),
		filepath.Join(home, "go", "bin", serverBinary),
		filepath.Join(home, ".local", "bin", serverBinary),
	)

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s binary not found", serverBinary)
}

// startServer runs the server binary, which detaches itself and returns
func startServer() error {
	serverPath, err := findServerBinary()
	if err != nil {
		return err
	}

	var args []string
	if configPath != "" {
		args = append(args, "-config", configPath)
	}
	out, err := exec.Command(serverPath, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to start server: %w: %s", err, out)
	}
	return nil
}

// waitForServerReady polls the health endpoint until it answers or the
// start timeout passes
func waitForServerReady() error {
	deadline := time.Now().Add(serverStartTimeout)
	for time.Now().Before(deadline) {
		if isServerRunning() {
			return nil
		}
		time.Sleep(serverPollInterval)
	}
	return fmt.Errorf("server did not start within %v", serverStartTimeout)
}

// ensureServerRunning starts the server unless it already answers
func ensureServerRunning() error {
	if isServerRunning() {
		return nil
	}

	printNeutral(os.Stderr, "Server not running, starting...")
	if err := startServer(); err != nil {
		return err
	}
	if err := waitForServerReady(); err != nil {
		return err
	}

	printSuccess(os.Stderr, "Server started")
	return nil
}
