package dashboard

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePortFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path, err := writePortFile(dir, 3901)
	require.NoError(t, err)

	pf, err := readPortFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pf.PID)
	assert.Equal(t, 3901, pf.Port)
	assert.NotEmpty(t, pf.Cwd)
}

func TestRemovePortFileOnMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	err := removePortFile(filepath.Join(dir, "dashboard-999999.json"))
	assert.NoError(t, err)
}

func TestIsProcessAliveForSelf(t *testing.T) {
	assert.True(t, isProcessAlive(os.Getpid()))
}

func TestIsProcessAliveForExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	assert.False(t, isProcessAlive(cmd.Process.Pid))
}

func TestSweepStalePortFilesRemovesDeadPIDsKeepsLive(t *testing.T) {
	dir := t.TempDir()
	livePath, err := writePortFile(dir, 3902)
	require.NoError(t, err)

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	stalePath := portFilePath(dir, cmd.Process.Pid)
	require.NoError(t, os.WriteFile(stalePath, mustMarshalPortFile(t, PortFile{PID: cmd.Process.Pid, Port: 3903}), 0o644))

	require.NoError(t, sweepStalePortFiles(dir))

	_, err = os.Stat(livePath)
	assert.NoError(t, err)
	_, err = os.Stat(stalePath)
	assert.True(t, os.IsNotExist(err))
}

func TestDiscoverPeersExcludesSelfAndDeadPIDs(t *testing.T) {
	dir := t.TempDir()
	_, err := writePortFile(dir, 3904)
	require.NoError(t, err)

	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()
	otherPath := portFilePath(dir, cmd.Process.Pid)
	require.NoError(t, os.WriteFile(otherPath, mustMarshalPortFile(t, PortFile{PID: cmd.Process.Pid, Port: 3905}), 0o644))

	peers, err := discoverPeers(dir, os.Getpid())
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, 3905, peers[0].Port)
}

func mustMarshalPortFile(t *testing.T, pf PortFile) []byte {
	t.Helper()
	data, err := json.Marshal(pf)
	require.NoError(t, err)
	return data
}
