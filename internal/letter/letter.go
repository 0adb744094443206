// Package letter drafts the formal complaint letter a citizen can forward to
// the responsible department. A language model writes it when available;
// otherwise (or on any failure) a fixed English or Urdu template is filled
// from the same fields.
package letter

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// Fields are the complaint facts a letter is written from.
type Fields struct {
	TrackingID  string
	IssueType   string
	Severity    string
	Department  string
	Location    string
	District    string
	Description string
}

// FieldsFrom copies the relevant columns of a complaint.
func FieldsFrom(c *domain.Complaint) Fields {
	return Fields{
		TrackingID:  c.TrackingID,
		IssueType:   string(c.IssueType),
		Severity:    string(c.Severity),
		Department:  c.Department,
		Location:    c.Location,
		District:    c.District,
		Description: c.Description,
	}
}

// Place joins location and district.
func (f Fields) Place() string {
	if strings.TrimSpace(f.District) == "" {
		return f.Location
	}
	return f.Location + ", " + f.District
}

// Generator writes a letter, or fails.
type Generator interface {
	Generate(ctx context.Context, f Fields, lang language.Tag) (string, error)
}

// Supported lists the letter languages; the first is the default.
var Supported = []language.Tag{language.English, language.Urdu}

var matcher = language.NewMatcher(Supported)

// Match resolves a client-provided language (e.g. "ur", "ur-PK", "urdu",
// "en-GB") to a supported tag.
func Match(s string) language.Tag {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "urdu", "اردو":
		return language.Urdu
	case "english", "":
		return language.English
	}
	tag, _, _ := matcher.Match(language.Make(s))
	base, _ := tag.Base()
	if base.String() == "ur" {
		return language.Urdu
	}
	return language.English
}

// Compose asks gen for a letter and falls back to Template when gen is nil,
// fails, or returns nothing. The bool reports whether the template was used.
func Compose(ctx context.Context, gen Generator, f Fields, lang language.Tag) (string, bool) {
	if gen != nil {
		text, err := gen.Generate(ctx, f, lang)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), false
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("tracking_id", f.TrackingID).Msg("letter generation failed; using template")
	}
	return Template(f, lang), true
}

var (
	englishTmpl = template.Must(template.New("en").Parse(`Subject: Complaint about {{.IssueType}} at {{.Location}} (ref. {{.TrackingID}})

To: {{.Department}}

Dear Sir/Madam,

I wish to report a {{.SeverityLower}} severity {{.IssueType}} problem at {{.Place}}.

Details:
{{.Description}}

The problem is affecting residents and passers-by and may become a safety hazard if left unattended. I kindly request your department to inspect the site and take corrective action at the earliest opportunity.

The tracking reference for this complaint is {{.TrackingID}}.

Thank you for your attention.

Respectfully,
A concerned citizen`))

	urduTmpl = template.Must(template.New("ur").Parse(`موضوع: {{.Location}} میں {{.IssueType}} کی شکایت (حوالہ {{.TrackingID}})

بخدمت: {{.Department}}

جناب عالی،

میں {{.Place}} میں موجود {{.IssueType}} کے مسئلے کی طرف آپ کی توجہ دلانا چاہتا ہوں۔ اس مسئلے کی شدت {{.Severity}} ہے۔

تفصیل:
{{.Description}}

اس مسئلے سے علاقے کے مکینوں کو مشکلات کا سامنا ہے۔ گزارش ہے کہ موقع کا معائنہ کر کے جلد از جلد کارروائی کی جائے۔

اس شکایت کا حوالہ نمبر {{.TrackingID}} ہے۔

شکریہ،
ایک شہری`))
)

type templateData struct {
	Fields
	SeverityLower string
}

// Template fills the fixed letter for lang (Urdu or English).
func Template(f Fields, lang language.Tag) string {
	t := englishTmpl
	if base, _ := lang.Base(); base.String() == "ur" {
		t = urduTmpl
	}
	var buf bytes.Buffer
	data := templateData{Fields: f, SeverityLower: strings.ToLower(f.Severity)}
	if err := t.Execute(&buf, data); err != nil {
		// Templates are static and data is plain strings.
		return fmt.Sprintf("Complaint %s: %s at %s", f.TrackingID, f.IssueType, f.Place())
	}
	return buf.String()
}
