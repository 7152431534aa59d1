package worker

import (
	"context"

	"github.com/sxm1129/bookqueue/internal/ttsclient"
)

// ttsClientAdapter adapts *ttsclient.Client's Result-returning
// Synthesize to the narrower Synthesizer interface Processor depends
// on, so tests can fake TTS without building a *ttsclient.Client.
type ttsClientAdapter struct {
	client *ttsclient.Client
}

// NewTTSClientAdapter wraps client as a Synthesizer.
func NewTTSClientAdapter(client *ttsclient.Client) Synthesizer {
	return &ttsClientAdapter{client: client}
}

func (a *ttsClientAdapter) Synthesize(ctx context.Context, chapterText string) ([]byte, *int, error) {
	result, err := a.client.Synthesize(ctx, chapterText)
	if err != nil {
		return nil, nil, err
	}
	return result.Audio, result.Duration, nil
}
