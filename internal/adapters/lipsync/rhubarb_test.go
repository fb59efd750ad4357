package lipsync_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/travel-agent/internal/adapters/lipsync"
)

// fakeFFmpeg writes a placeholder WAV to its last argument.
const fakeFFmpeg = `#!/bin/sh
for last in "$@"; do :; done
printf 'RIFF' > "$last"
`

// fakeRhubarb writes $RHUBARB_OUTPUT to the -o path.
const fakeRhubarb = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
printf '%s' "$RHUBARB_OUTPUT" > "$out"
`

const failing = `#!/bin/sh
echo "boom" >&2
exit 1
`

func script(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func setup(t *testing.T) (dir, mp3 string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts stand in for ffmpeg and rhubarb")
	}
	dir = t.TempDir()
	mp3 = filepath.Join(dir, "segment_0.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte("ID3"), 0o600))
	return dir, mp3
}

func assertIntermediatesRemoved(t *testing.T, dir string) {
	t.Helper()
	assert.NoFileExists(t, filepath.Join(dir, "segment_0.wav"))
	assert.NoFileExists(t, filepath.Join(dir, "segment_0.json"))
}

func TestExtract(t *testing.T) {
	dir, mp3 := setup(t)
	t.Setenv("RHUBARB_OUTPUT", `{"metadata":{"duration":0.5},"mouthCues":[{"start":0,"end":0.2,"value":"X"},{"start":0.2,"end":0.5,"value":"B"}]}`)

	ex := lipsync.NewExtractor(script(t, dir, "ffmpeg", fakeFFmpeg), script(t, dir, "rhubarb", fakeRhubarb))
	raw, err := ex.Extract(context.Background(), mp3)
	require.NoError(t, err)

	assert.JSONEq(t, `{"metadata":{"duration":0.5},"mouthCues":[{"start":0,"end":0.2,"value":"X"},{"start":0.2,"end":0.5,"value":"B"}]}`, string(raw))
	assertIntermediatesRemoved(t, dir)
	assert.FileExists(t, mp3)
}

func TestExtractFFmpegFailure(t *testing.T) {
	dir, mp3 := setup(t)

	ex := lipsync.NewExtractor(script(t, dir, "ffmpeg", failing), script(t, dir, "rhubarb", fakeRhubarb))
	_, err := ex.Extract(context.Background(), mp3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg")
	assert.Contains(t, err.Error(), "boom")
	assertIntermediatesRemoved(t, dir)
}

func TestExtractRhubarbFailure(t *testing.T) {
	dir, mp3 := setup(t)

	ex := lipsync.NewExtractor(script(t, dir, "ffmpeg", fakeFFmpeg), script(t, dir, "rhubarb", failing))
	_, err := ex.Extract(context.Background(), mp3)
	assert.ErrorContains(t, err, "rhubarb")
	assertIntermediatesRemoved(t, dir)
}

func TestExtractMalformedOutput(t *testing.T) {
	dir, mp3 := setup(t)
	ex := lipsync.NewExtractor(script(t, dir, "ffmpeg", fakeFFmpeg), script(t, dir, "rhubarb", fakeRhubarb))

	t.Setenv("RHUBARB_OUTPUT", `not json`)
	_, err := ex.Extract(context.Background(), mp3)
	assert.ErrorContains(t, err, "decode mouth cues")

	t.Setenv("RHUBARB_OUTPUT", `{"metadata":{}}`)
	_, err = ex.Extract(context.Background(), mp3)
	assert.ErrorContains(t, err, "missing mouthCues")
	assertIntermediatesRemoved(t, dir)
}

func TestExtractMissingBinary(t *testing.T) {
	dir, mp3 := setup(t)
	ex := lipsync.NewExtractor(filepath.Join(dir, "no-such-ffmpeg"), filepath.Join(dir, "no-such-rhubarb"))

	_, err := ex.Extract(context.Background(), mp3)
	assert.ErrorContains(t, err, "ffmpeg")
}
