package dashboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const portFilePrefix = "dashboard-"

func portFilePath(stateDir string, pid int) string {
	return filepath.Join(stateDir, fmt.Sprintf("%s%d.json", portFilePrefix, pid))
}

// writePortFile records this process's listening port at
// state/dashboard-<pid>.json (spec §6 "Peer discovery").
func writePortFile(stateDir string, port int) (string, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", fmt.Errorf("dashboard: mkdir state dir: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	pf := PortFile{
		PID:       os.Getpid(),
		Port:      port,
		StartedAt: time.Now().UTC(),
		Cwd:       cwd,
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dashboard: marshal port file: %w", err)
	}
	path := portFilePath(stateDir, pf.PID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("dashboard: write port file: %w", err)
	}
	return path, nil
}

func removePortFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// isProcessAlive probes pid with a signal 0, which on a live process with
// permission to signal returns nil and delivers nothing (grounded on
// cuemby-warren/test/framework/process.go's IsRunning check).
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// sweepStalePortFiles deletes every dashboard-*.json in stateDir whose pid
// is no longer alive. Run once at startup before binding.
func sweepStalePortFiles(stateDir string) error {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("dashboard: read state dir: %w", err)
	}
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasPrefix(ent.Name(), portFilePrefix) {
			continue
		}
		path := filepath.Join(stateDir, ent.Name())
		pf, err := readPortFile(path)
		if err != nil {
			_ = os.Remove(path)
			continue
		}
		if !isProcessAlive(pf.PID) {
			_ = os.Remove(path)
		}
	}
	return nil
}

func readPortFile(path string) (PortFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PortFile{}, err
	}
	var pf PortFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return PortFile{}, err
	}
	return pf, nil
}

// discoverPeers returns every live dashboard peer other than selfPID,
// sweeping stale entries first.
func discoverPeers(stateDir string, selfPID int) ([]PortFile, error) {
	if err := sweepStalePortFiles(stateDir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dashboard: read state dir: %w", err)
	}
	var peers []PortFile
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasPrefix(ent.Name(), portFilePrefix) {
			continue
		}
		pf, err := readPortFile(filepath.Join(stateDir, ent.Name()))
		if err != nil {
			continue
		}
		if pf.PID == selfPID {
			continue
		}
		if !isProcessAlive(pf.PID) {
			continue
		}
		peers = append(peers, pf)
	}
	return peers, nil
}

// pidFromPortFileName extracts the pid from a dashboard-<pid>.json name.
// It has no callers; production code reads the pid from PortFile.PID.
func pidFromPortFileName(name string) (int, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, portFilePrefix), ".json")
	pid, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return pid, true
}
