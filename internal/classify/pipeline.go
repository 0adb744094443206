package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"github.com/tbourn/civic-complaints-backend/internal/observability"
)

// Pipeline is the single entry point for classification. It is safe for
// concurrent use once built.
type Pipeline struct {
	// Primary is the configured provider. Nil or a *Keyword means keyword
	// rules answer directly.
	Primary Provider
	// Fallback answers whenever Primary fails or times out.
	Fallback *Keyword

	Captioner   Captioner
	Transcriber Transcriber

	// Timeout bounds each external call (provider, captioner, transcriber).
	Timeout time.Duration
}

// NewPipeline wires a pipeline with keyword fallback and a default timeout.
func NewPipeline(primary Provider, captioner Captioner, transcriber Transcriber, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pipeline{
		Primary:     primary,
		Fallback:    NewKeyword(nil),
		Captioner:   captioner,
		Transcriber: transcriber,
		Timeout:     timeout,
	}
}

// ClassifyText classifies citizen-written text.
func (p *Pipeline) ClassifyText(ctx context.Context, text string, lang language.Tag) Result {
	ctx, span := otel.Tracer("classify/Pipeline").Start(ctx, "ClassifyText")
	defer span.End()

	res := p.classify(ctx, text, lang)
	span.SetAttributes(
		attribute.String("classify.provider", res.Provider),
		attribute.String("classify.issue_type", string(res.IssueType)),
		attribute.Bool("classify.degraded", res.Degraded),
	)
	return res
}

// ClassifyImage captions the photo, then classifies the caption.
func (p *Pipeline) ClassifyImage(ctx context.Context, image []byte, lang language.Tag) Result {
	ctx, span := otel.Tracer("classify/Pipeline").Start(ctx, "ClassifyImage",
		trace.WithAttributes(attribute.Int("image.bytes", len(image))))
	defer span.End()

	caption := CaptionPlaceholder
	if p.Captioner != nil {
		caption = guarded(ctx, "captioner", func(cctx context.Context) string {
			return p.Captioner.Caption(cctx, image)
		}, p.timeout())
	}
	if strings.TrimSpace(caption) == "" {
		caption = CaptionPlaceholder
	}
	res := p.classify(ctx, caption, lang)
	if caption == CaptionPlaceholder {
		res.Degraded = true
	}
	return res
}

// ClassifyAudio transcribes the clip, then classifies the transcript. An
// empty transcript yields Other / Low / General Administration.
func (p *Pipeline) ClassifyAudio(ctx context.Context, audio []byte, lang language.Tag) Result {
	ctx, span := otel.Tracer("classify/Pipeline").Start(ctx, "ClassifyAudio",
		trace.WithAttributes(attribute.Int("audio.bytes", len(audio))))
	defer span.End()

	var transcript string
	if p.Transcriber != nil && len(audio) >= MinAudioBytes {
		transcript = guarded(ctx, "transcriber", func(cctx context.Context) string {
			return p.Transcriber.Transcribe(cctx, audio, lang)
		}, p.timeout())
	}
	return p.classify(ctx, transcript, lang)
}

func (p *Pipeline) classify(ctx context.Context, text string, lang language.Tag) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		observability.Classifications.WithLabelValues("none", "empty").Inc()
		return Unclassified("")
	}

	fallback := p.Fallback
	if fallback == nil {
		fallback = NewKeyword(nil)
	}

	degraded := false
	if p.Primary != nil {
		if _, isKeyword := p.Primary.(*Keyword); !isKeyword {
			res, err := p.callPrimary(ctx, text, lang)
			if err == nil {
				res.Evidence = text
				res.Provider = p.Primary.Name()
				norm, coerced := normalize(res)
				outcome := "ok"
				if coerced {
					outcome = "coerced"
					norm.Degraded = true
					zerolog.Ctx(ctx).Debug().Str("provider", norm.Provider).Msg("classifier answer corrected to taxonomy")
				}
				observability.Classifications.WithLabelValues(norm.Provider, outcome).Inc()
				return norm
			}
			degraded = true
			zerolog.Ctx(ctx).Warn().Err(err).Str("provider", p.Primary.Name()).Msg("classifier failed; using keyword rules")
		}
	}

	res, _ := normalize(fallback.Match(text))
	res.Degraded = degraded
	outcome := "ok"
	if degraded {
		outcome = "fallback"
	}
	observability.Classifications.WithLabelValues(fallback.Name(), outcome).Inc()
	return res
}

// callPrimary runs the primary provider under the timeout. A panic becomes
// an error so the keyword rules still answer.
func (p *Pipeline) callPrimary(ctx context.Context, text string, lang language.Tag) (res Result, err error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classify: provider panicked: %v", r)
		}
	}()
	return p.Primary.Classify(cctx, text, lang)
}

// guarded runs a capability adapter under the timeout; a panic yields "".
func guarded(ctx context.Context, name string, fn func(context.Context) string, timeout time.Duration) (out string) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Interface("panic", r).Str("adapter", name).Msg("adapter panicked")
			out = ""
		}
	}()
	return fn(cctx)
}

func (p *Pipeline) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 10 * time.Second
	}
	return p.Timeout
}
