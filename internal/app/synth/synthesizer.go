package synth

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

type Options struct {
	// Concurrency bounds how many segments are synthesized at once.
	Concurrency    int
	SegmentTimeout time.Duration
}

// Synthesizer attaches speech audio and mouth cues to reply segments.
type Synthesizer struct {
	speech  domain.SpeechSynthesizer
	visemes domain.VisemeExtractor
	opts    Options
}

func NewSynthesizer(speech domain.SpeechSynthesizer, visemes domain.VisemeExtractor, opts Options) *Synthesizer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Synthesizer{speech: speech, visemes: visemes, opts: opts}
}

// Synthesize returns a copy of segments, in the same order, with Audio and
// LipSync filled in. A segment whose speech or cues fail keeps both nil;
// the others are unaffected.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	ws *Workspace,
	voiceID string,
	segments []domain.ReplySegment,
) []domain.ReplySegment {
	out := make([]domain.ReplySegment, len(segments))
	copy(out, segments)

	log := observability.LoggerFromContext(ctx)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)

	failed := make([]bool, len(out))
	for i := range out {
		g.Go(func() error {
			if err := s.segment(ctx, ws, voiceID, i, &out[i]); err != nil {
				failed[i] = true
				log.Warn("segment synthesis failed", "segment", i, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	nFailed := 0
	for _, f := range failed {
		if f {
			nFailed++
		}
	}
	log.Info("segments synthesized",
		"segments", len(out),
		"failed", nFailed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (s *Synthesizer) segment(ctx context.Context, ws *Workspace, voiceID string, i int, seg *domain.ReplySegment) error {
	seg.Audio = nil
	seg.LipSync = nil

	if s.opts.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SegmentTimeout)
		defer cancel()
	}

	audio, err := s.speech.Synthesize(ctx, seg.Text, voiceID)
	if err != nil {
		return fmt.Errorf("speech: %w", err)
	}

	mp3Path := ws.Path(fmt.Sprintf("segment_%d.mp3", i))
	if err := os.WriteFile(mp3Path, audio, 0o600); err != nil {
		return fmt.Errorf("writing audio: %w", err)
	}
	defer os.Remove(mp3Path)

	cues, err := s.visemes.Extract(ctx, mp3Path)
	if err != nil {
		return fmt.Errorf("visemes: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(audio)
	seg.Audio = &encoded
	seg.LipSync = cues
	return nil
}
