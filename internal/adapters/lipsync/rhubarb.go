package lipsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Extractor derives mouth cues from an MP3 with two external tools: ffmpeg
// decodes to WAV and rhubarb produces the timing JSON.
type Extractor struct {
	ffmpegPath  string
	rhubarbPath string
}

func NewExtractor(ffmpegPath, rhubarbPath string) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if rhubarbPath == "" {
		rhubarbPath = "./bin/rhubarb"
	}
	return &Extractor{ffmpegPath: ffmpegPath, rhubarbPath: rhubarbPath}
}

type mouthCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value string  `json:"value"`
}

type rhubarbOutput struct {
	MouthCues []mouthCue `json:"mouthCues"`
}

// Extract writes <name>.wav and <name>.json next to audioPath and removes
// both before returning, on success or failure.
func (e *Extractor) Extract(ctx context.Context, audioPath string) (json.RawMessage, error) {
	stem := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	wavPath := stem + ".wav"
	jsonPath := stem + ".json"
	defer os.Remove(wavPath)
	defer os.Remove(jsonPath)

	if err := run(ctx, e.ffmpegPath, "-y", "-i", audioPath, wavPath); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	if err := run(ctx, e.rhubarbPath, "-f", "json", "-o", jsonPath, wavPath, "-r", "phonetic"); err != nil {
		return nil, fmt.Errorf("rhubarb: %w", err)
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read mouth cues: %w", err)
	}

	var out rhubarbOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode mouth cues: %w", err)
	}
	if out.MouthCues == nil {
		return nil, errors.New("decode mouth cues: missing mouthCues")
	}
	return json.RawMessage(bytes.TrimSpace(raw)), nil
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		if msg == "" {
			return err
		}
		return fmt.Errorf("%w: %s", err, msg)
	}
	return nil
}
