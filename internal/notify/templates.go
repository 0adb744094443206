package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

var statusColors = map[domain.Status]string{
	domain.StatusPending:     "#FFA726",
	domain.StatusUnderReview: "#42A5F5",
	domain.StatusAssigned:    "#66BB6A",
	domain.StatusInProgress:  "#26C6DA",
	domain.StatusResolved:    "#4CAF50",
	domain.StatusRejected:    "#EF5350",
}

var (
	createdTmpl = template.Must(template.New("created").Parse(`<html><body style="font-family:Arial,sans-serif;color:#333">
<h2>Complaint registered</h2>
<p>Dear Citizen,</p>
<p>Thank you for reporting a civic issue. Your complaint has been registered.</p>
<p style="background:#4CAF50;color:#fff;padding:12px;font-size:20px;text-align:center"><strong>Tracking ID: {{.TrackingID}}</strong></p>
<ul>
<li><strong>Issue type:</strong> {{.IssueType}}</li>
<li><strong>Department:</strong> {{.Department}}</li>
<li><strong>Location:</strong> {{.Location}}</li>
<li><strong>Status:</strong> Pending review</li>
</ul>
<p>Keep your tracking ID to follow the progress of your complaint.</p>
</body></html>`))

	statusTmpl = template.Must(template.New("status").Parse(`<html><body style="font-family:Arial,sans-serif;color:#333">
<h2>Status update for {{.TrackingID}}</h2>
<p>Dear Citizen,</p>
<p>The status of your complaint has changed.</p>
<p style="background:{{.Color}};color:#fff;padding:12px;font-size:18px;text-align:center"><strong>{{.Previous}} to {{.Current}}</strong></p>
{{if .Notes}}<p><strong>Notes:</strong> {{.Notes}}</p>{{end}}
<p>You can look up your complaint at any time with its tracking ID.</p>
</body></html>`))
)

// CreatedSubject is the subject of the submission confirmation.
func CreatedSubject(id string) string { return "Complaint Submitted - " + id }

// StatusSubject is the subject of a status-change e-mail.
func StatusSubject(id string) string { return "Status Update - " + id }

// CreatedSMS is the submission confirmation text.
func CreatedSMS(id string) string {
	return fmt.Sprintf("Your complaint has been registered. Tracking ID: %s. Use it to track the status.", id)
}

// StatusSMS is the status-change text.
func StatusSMS(id string, status domain.Status) string {
	return fmt.Sprintf("Complaint %s status updated to: %s.", id, status)
}

func createdHTML(c *domain.Complaint) (string, error) {
	var buf bytes.Buffer
	err := createdTmpl.Execute(&buf, c)
	return buf.String(), err
}

func statusHTML(c *domain.Complaint, previous domain.Status, notes string) (string, error) {
	color, ok := statusColors[c.Status]
	if !ok {
		color = "#999999"
	}
	var buf bytes.Buffer
	err := statusTmpl.Execute(&buf, struct {
		TrackingID        string
		Previous, Current domain.Status
		Notes             string
		Color             template.CSS
	}{c.TrackingID, previous, c.Status, notes, template.CSS(color)})
	return buf.String(), err
}
