package providers

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/storymill/storymill/internal/resilient"
	"github.com/storymill/storymill/internal/story"
)

const (
	SpeechProviderName = "openai"
	speechDefaultModel = openai.SpeechModelTTS1HD
	speechDefaultVoice = "onyx"
	silenceSampleRate  = 24000
	silenceDurationSec = 1.0
)

// SpeechConfig holds configuration for the OpenAI speech client.
type SpeechConfig struct {
	APIKey            string
	Model             string        // "tts-1-hd" (default), "tts-1", "gpt-4o-mini-tts"
	Voice             string        // "onyx" (default)
	Speed             float64       // 0.25-4.0
	MaxRetries        int           // SDK transport retries; zero, because callers own the retry policy
	RequestsPerMinute int           // token bucket for the speech endpoint (60/min default)
	Timeout           time.Duration // HTTP timeout
	BaseURL           string        // Optional (tests)
	HTTPClient        *http.Client  // Optional (tests)
}

// SpeechClient implements SpeechSynthesizer using the official OpenAI SDK.
type SpeechClient struct {
	model   string
	voice   string
	speed   float64
	limiter *RateLimiter
	client  openai.Client
}

// NewSpeechClient creates an OpenAI-backed speech synthesizer.
func NewSpeechClient(cfg SpeechConfig) *SpeechClient {
	if cfg.Model == "" {
		cfg.Model = speechDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = speechDefaultVoice
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Transport retries stay off so the orchestrator's retry wrapper
		// is the only layer that re-attempts synthesis.
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &SpeechClient{
		model:   cfg.Model,
		voice:   cfg.Voice,
		speed:   cfg.Speed,
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
		client:  openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *SpeechClient) Name() string {
	return SpeechProviderName
}

// Synthesize converts the spoken script lines into narration audio.
// Lines are grouped into per-voice segments so every speaker keeps their
// assigned voice; SFX lines never reach the synthesizer, and an empty
// spoken set returns one second of silence rather than failing.
func (c *SpeechClient) Synthesize(ctx context.Context, lines []story.ScriptLine, cfg story.NarrationConfig) (*story.NarrationAudio, error) {
	segments := spokenSegments(lines, cfg, c.voice)
	if len(segments) == 0 {
		return SilentAudio(), nil
	}

	speed := cfg.Speed
	if speed <= 0 {
		speed = c.speed
	}

	// MP3 frames concatenate into one playable stream, so per-voice
	// segments join without re-encoding.
	var data []byte
	chars := 0
	for _, seg := range segments {
		part, err := c.synthesizeSegment(ctx, seg, speed)
		if err != nil {
			return nil, err
		}
		data = append(data, part...)
		chars += len(seg.text)
	}

	return &story.NarrationAudio{
		Data:   data,
		Format: "mp3",
		// Estimated with the same reading-rate constant the timing
		// calculator uses, so cue offsets and duration agree.
		DurationSec: float64(chars) / story.CharsPerSecond,
	}, nil
}

func (c *SpeechClient) synthesizeSegment(ctx context.Context, seg speechSegment, speed float64) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          seg.text,
		Model:          openai.SpeechModel(c.model),
		Voice:          openai.AudioSpeechNewParamsVoice(seg.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openai.Float(speed),
	})
	if err != nil {
		mapped := mapSpeechError(err)
		var rateErr *resilient.RateLimitError
		if errors.As(mapped, &rateErr) {
			c.limiter.Record429(rateErr.RetryAfter)
		}
		return nil, mapped
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading speech response: %w", err)
	}
	return audio, nil
}

// speechSegment is one contiguous run of lines synthesized with a single
// voice.
type speechSegment struct {
	voice string
	text  string
}

// spokenSegments groups consecutive spoken lines by their resolved voice.
// SFX and blank lines are dropped, so spoken runs interrupted only by
// cues still merge into one segment.
func spokenSegments(lines []story.ScriptLine, cfg story.NarrationConfig, fallback string) []speechSegment {
	var segs []speechSegment
	for _, line := range lines {
		if line.IsSFX() {
			continue
		}
		t := strings.TrimSpace(line.Text)
		if t == "" {
			continue
		}
		voice := cfg.VoiceFor(line.Speaker)
		if voice == "" {
			voice = fallback
		}
		if n := len(segs); n > 0 && segs[n-1].voice == voice {
			segs[n-1].text += "\n\n" + t
			continue
		}
		segs = append(segs, speechSegment{voice: voice, text: t})
	}
	return segs
}

// SilentAudio returns one second of PCM silence as a WAV blob.
func SilentAudio() *story.NarrationAudio {
	samples := int(silenceSampleRate * silenceDurationSec)
	dataSize := samples * 2 // 16-bit mono

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], silenceSampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], silenceSampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	return &story.NarrationAudio{
		Data:        buf,
		Format:      "wav",
		DurationSec: silenceDurationSec,
	}
}

func mapSpeechError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &resilient.RateLimitError{
				Message:    fmt.Sprintf("speech backend rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("speech backend error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("speech backend error (status %d)", apiErr.StatusCode)
	}
	return err
}

var _ SpeechSynthesizer = (*SpeechClient)(nil)
