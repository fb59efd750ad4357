package synth_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/travel-agent/internal/app/synth"
)

func TestWorkspaceUniquePerTurn(t *testing.T) {
	base := t.TempDir()

	a, err := synth.NewWorkspace(base, "same-session")
	require.NoError(t, err)
	b, err := synth.NewWorkspace(base, "same-session")
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir(), b.Dir())
	assert.True(t, strings.HasPrefix(filepath.Base(a.Dir()), "same-session-"))
}

func TestWorkspaceCleanupIsIdempotent(t *testing.T) {
	ws, err := synth.NewWorkspace(t.TempDir(), "s")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws.Path("segment_0.wav"), []byte("x"), 0o600))

	require.NoError(t, ws.Cleanup())
	assert.NoDirExists(t, ws.Dir())
	assert.NoError(t, ws.Cleanup())
}

func TestWorkspaceSanitizesSessionID(t *testing.T) {
	base := t.TempDir()

	ws, err := synth.NewWorkspace(base, "../../etc/passwd")
	require.NoError(t, err)
	defer ws.Cleanup()

	assert.Equal(t, base, filepath.Dir(ws.Dir()))
	assert.Equal(t, filepath.Join(ws.Dir(), "x.mp3"), ws.Path("../x.mp3"))

	empty, err := synth.NewWorkspace(base, "")
	require.NoError(t, err)
	defer empty.Cleanup()
	assert.True(t, strings.HasPrefix(filepath.Base(empty.Dir()), "session-"))
}
