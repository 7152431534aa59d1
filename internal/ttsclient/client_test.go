package ttsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpeakerFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speaker.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o600))
	return path
}

func TestSynthesizeHappyPath(t *testing.T) {
	pollHits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts/synthesize", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "0.65", r.FormValue("emotion_weight"))
		assert.NotEmpty(t, r.FormValue("text"))
		_, _, err := r.FormFile("speaker_audio")
		require.NoError(t, err)

		resp := synthesizeResponse{MP3URL: "/files/out.mp3", Duration: ptr(12.5)}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/files/out.mp3", func(w http.ResponseWriter, r *http.Request) {
		pollHits++
		if pollHits < 2 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("mp3-bytes"))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(Config{
		BaseURL:          srv.URL,
		SpeakerAudioPath: writeSpeakerFile(t),
		PollAttempts:     5,
		PollInterval:     10 * time.Millisecond,
	})

	result, err := client.Synthesize(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), result.Audio)
	require.NotNil(t, result.Duration)
	assert.Equal(t, 12, *result.Duration)
	assert.Equal(t, 2, pollHits)
}

func TestSynthesizeMissingMP3URL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts/synthesize", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(synthesizeResponse{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, SpeakerAudioPath: writeSpeakerFile(t), PollAttempts: 1, PollInterval: time.Millisecond})
	_, err := client.Synthesize(context.Background(), "text")
	assert.ErrorContains(t, err, "mp3_url")
}

func TestPollExhaustion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts/synthesize", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		json.NewEncoder(w).Encode(synthesizeResponse{MP3URL: "/files/never.mp3"})
	})
	mux.HandleFunc("/files/never.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, SpeakerAudioPath: writeSpeakerFile(t), PollAttempts: 3, PollInterval: time.Millisecond})
	_, err := client.Synthesize(context.Background(), "text")
	assert.ErrorContains(t, err, "exhausted")
}

func ptr(f float64) *float64 { return &f }
