package classify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

const (
	// CaptionPlaceholder stands in for a photo the captioner could not describe.
	CaptionPlaceholder = "an unidentified civic issue"
	// MinAudioBytes is the smallest clip worth sending for transcription.
	MinAudioBytes = 200
)

// Captioner describes a photo in natural language. Implementations never
// fail: on any error they return CaptionPlaceholder.
type Captioner interface {
	Caption(ctx context.Context, image []byte) string
}

// Transcriber converts speech to text. Implementations never fail: on any
// error or silence they return "".
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, lang language.Tag) string
}

// CapabilityConfig configures an HTTP inference endpoint.
type CapabilityConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func newCapabilityClient(cfg CapabilityConfig) *resty.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return c
}

// HTTPCaptioner posts raw image bytes to an image-to-text inference endpoint
// (Hugging Face style) and reads back "generated_text".
type HTTPCaptioner struct {
	url  string
	http *resty.Client
}

// NewHTTPCaptioner returns nil when cfg.URL is empty.
func NewHTTPCaptioner(cfg CapabilityConfig) *HTTPCaptioner {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	return &HTTPCaptioner{url: cfg.URL, http: newCapabilityClient(cfg)}
}

func (h *HTTPCaptioner) Caption(ctx context.Context, image []byte) string {
	if h == nil || len(image) == 0 {
		return CaptionPlaceholder
	}
	resp, err := h.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(image).
		Post(h.url)
	if err != nil || resp.IsError() {
		zerolog.Ctx(ctx).Warn().Err(err).Int("status", statusOf(resp)).Msg("captioning failed")
		return CaptionPlaceholder
	}
	if text := generatedText(resp.Body()); text != "" {
		return text
	}
	return CaptionPlaceholder
}

// generatedText accepts [{"generated_text": ...}], {"generated_text": ...}
// or {"caption": ...}.
func generatedText(body []byte) string {
	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		if s, ok := list[0]["generated_text"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, k := range []string{"generated_text", "caption", "text"} {
			if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// HTTPTranscriber posts audio bytes to a speech-to-text endpoint
// (Whisper style) and reads back "text".
type HTTPTranscriber struct {
	url  string
	http *resty.Client
}

// NewHTTPTranscriber returns nil when cfg.URL is empty.
func NewHTTPTranscriber(cfg CapabilityConfig) *HTTPTranscriber {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	return &HTTPTranscriber{url: cfg.URL, http: newCapabilityClient(cfg)}
}

func (h *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, lang language.Tag) string {
	if h == nil || len(audio) < MinAudioBytes {
		return ""
	}
	req := h.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(audio)
	if base, _ := lang.Base(); lang != language.Und {
		req.SetQueryParam("language", base.String())
	}
	var out struct {
		Text string `json:"text"`
	}
	resp, err := req.SetResult(&out).Post(h.url)
	if err != nil || resp.IsError() {
		zerolog.Ctx(ctx).Warn().Err(err).Int("status", statusOf(resp)).Msg("transcription failed")
		return ""
	}
	return strings.TrimSpace(out.Text)
}

func statusOf(resp *resty.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}
