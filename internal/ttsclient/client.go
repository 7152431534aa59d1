// Package ttsclient wraps the opaque TTS HTTP contract (§6): a
// multipart synthesize POST followed by polling a resolved MP3 URL.
// Request/response logging follows the teacher's
// internal/provider/openai_tts.go idiom (truncated payload logging,
// Bearer auth, per-call timing).
package ttsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// fixed synthesis form fields, §4.4 step 1(a). These are never
// configurable — they are part of the wire contract, not a tunable.
var fixedSynthesisParams = map[string]string{
	"emotion_control_method":      "0",
	"emotion_weight":              "0.65",
	"emotion_random":              "false",
	"max_text_tokens_per_segment": "120",
	"interval_silence":            "200",
	"do_sample":                   "true",
	"top_p":                       "0.8",
	"top_k":                       "30",
	"temperature":                 "0.8",
	"length_penalty":              "0.0",
	"num_beams":                   "3",
	"repetition_penalty":          "10.0",
	"max_mel_tokens":              "1500",
}

// Config configures a Client.
type Config struct {
	BaseURL          string
	APIKey           string
	SpeakerAudioPath string
	PollAttempts     int
	PollInterval     time.Duration
}

// Client talks to the TTS synthesis endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client. The synthesize call itself is bounded to 120s
// (§6); the poll client uses a shorter 60s-per-GET timeout, so both
// share one underlying *http.Client with no default timeout and each
// call supplies its own context deadline instead.
func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Result is the output of a completed synthesis: raw MP3 bytes and
// the optional duration the TTS service reported.
type Result struct {
	Audio    []byte
	Duration *int
}

type synthesizeResponse struct {
	MP3URL   string   `json:"mp3_url"`
	Duration *float64 `json:"duration"`
}

// Synthesize posts chapterText to the synthesis endpoint, then polls
// the returned mp3_url until it resolves to audio bytes, an error
// status, or poll exhaustion (§4.4 steps 1-3).
func (c *Client) Synthesize(ctx context.Context, chapterText string) (*Result, error) {
	mp3URL, duration, err := c.synthesize(ctx, chapterText)
	if err != nil {
		return nil, err
	}

	audio, err := c.pollMP3(ctx, mp3URL)
	if err != nil {
		return nil, err
	}

	var dur *int
	if duration != nil {
		d := int(*duration)
		dur = &d
	}
	return &Result{Audio: audio, Duration: dur}, nil
}

func (c *Client) synthesize(ctx context.Context, chapterText string) (string, *float64, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for field, value := range fixedSynthesisParams {
		if err := writer.WriteField(field, value); err != nil {
			return "", nil, fmt.Errorf("write field %s: %w", field, err)
		}
	}
	if err := writer.WriteField("text", chapterText); err != nil {
		return "", nil, fmt.Errorf("write text field: %w", err)
	}

	if err := attachSpeakerAudio(writer, c.cfg.SpeakerAudioPath); err != nil {
		return "", nil, fmt.Errorf("attach speaker audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := joinURL(c.cfg.BaseURL, "/api/tts/synthesize")
	reqCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", nil, fmt.Errorf("build synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	log.Printf("[tts] POST %s (text_length=%d chars)", endpoint, len(chapterText))
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("synthesize request: %w", err)
	}
	defer resp.Body.Close()
	log.Printf("[tts] synthesize response %d (took %v)", resp.StatusCode, time.Since(start))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read synthesize response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("synthesize failed with status %d: %s", resp.StatusCode, truncate(string(payload), 500))
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", nil, fmt.Errorf("parse synthesize response: %w", err)
	}
	if parsed.MP3URL == "" {
		return "", nil, fmt.Errorf("synthesize response missing mp3_url")
	}
	return parsed.MP3URL, parsed.Duration, nil
}

func (c *Client) pollMP3(ctx context.Context, mp3URL string) ([]byte, error) {
	endpoint := joinURL(c.cfg.BaseURL, mp3URL)
	attempts := c.cfg.PollAttempts

	for attempt := 0; attempt < attempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("build poll request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("poll mp3 (attempt %d): %w", attempt+1, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			cancel()
			if err != nil {
				return nil, fmt.Errorf("read mp3 body: %w", err)
			}
			return data, nil
		case http.StatusAccepted:
			resp.Body.Close()
			cancel()
			wait := c.cfg.PollInterval * time.Duration(attempt+1)
			log.Printf("[tts] mp3 not ready (attempt %d/%d), sleeping %v", attempt+1, attempts, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		default:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("poll mp3 failed with status %d: %s", resp.StatusCode, truncate(string(body), 500))
		}
	}

	return nil, fmt.Errorf("mp3 poll exhausted after %d attempts", attempts)
}

func attachSpeakerAudio(writer *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := writer.CreateFormFile("speaker_audio", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy speaker audio: %w", err)
	}
	return nil
}

func joinURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return base + ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return base + ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...(truncated)"
}
