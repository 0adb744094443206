// Complaint HTTP handlers.
//
// This file exposes the citizen-facing endpoints:
//   - POST /complaints                   (file a complaint, JSON or multipart)
//   - GET  /complaints                   (signed-in citizen's own complaints)
//   - GET  /complaints/{id}              (track one complaint)
//   - GET  /complaints/{id}/history      (status timeline, ETag support)
//   - GET  /complaints/{id}/letter       (formal complaint letter)
//   - POST /classify                     (taxonomy preview for free text)
//   - GET  /departments                  (routing directory)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous submission
// with the same key exists for this client, the handler returns the complaint
// filed the first time and sets `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/http/middleware"
	"github.com/tbourn/civic-complaints-backend/internal/letter"
	"github.com/tbourn/civic-complaints-backend/internal/services"
	"github.com/tbourn/civic-complaints-backend/internal/trackingid"
)

//
// DTOs
//

// SubmitComplaintRequest is the payload for filing a complaint. It is read
// from JSON or, when photos or voice notes are attached, from multipart form
// fields alongside "image" and "audio" file parts.
type SubmitComplaintRequest struct {
	Description  string `json:"description"   form:"description"   example:"Large pothole outside the school gate"`
	Location     string `json:"location"      form:"location"      example:"Main Boulevard, Gulberg"`
	District     string `json:"district"      form:"district"      example:"Lahore"`
	ContactEmail string `json:"contact_email" form:"contact_email" binding:"omitempty,email,max=255" example:"citizen@example.com"`
	ContactPhone string `json:"contact_phone" form:"contact_phone" example:"+923001234567"`
	Language     string `json:"language"      form:"language"      example:"en"`
	Notes        string `json:"notes"         form:"notes"`
}

// SubmitComplaintResponse wraps the filed complaint.
type SubmitComplaintResponse struct {
	TrackingID string            `json:"tracking_id" example:"CIV-04839217"`
	Complaint  *domain.Complaint `json:"complaint"`
}

// ListComplaintsResponse contains a page of complaints and pagination metadata.
type ListComplaintsResponse struct {
	Complaints []domain.Complaint `json:"complaints"`
	Pagination Pagination         `json:"pagination"`
}

// HistoryResponse is the status timeline of one complaint, newest first.
type HistoryResponse struct {
	TrackingID string                   `json:"tracking_id"`
	Updates    []domain.ComplaintUpdate `json:"updates"`
}

// LetterResponse carries a drafted formal complaint letter.
type LetterResponse struct {
	TrackingID string `json:"tracking_id"`
	Language   string `json:"language" example:"ur"`
	// Templated is true when the fixed template was used.
	Templated bool   `json:"templated"`
	Letter    string `json:"letter"`
}

// ClassifyRequest is the payload for a classification preview.
type ClassifyRequest struct {
	Text     string `json:"text" binding:"required" example:"garbage has not been collected for a week"`
	Language string `json:"language" example:"en"`
}

//
// Helpers
//

var errUploadTooLarge = errors.New("upload too large")

// readUpload reads one multipart file, refusing anything above max bytes.
func readUpload(fh *multipart.FileHeader, max int64) ([]byte, error) {
	if fh.Size > max {
		return nil, errUploadTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errUploadTooLarge
	}
	return data, nil
}

// bindSubmission reads the request body into a services.Submission.
func (h *Handlers) bindSubmission(c *gin.Context) (services.Submission, int, string, string) {
	var req SubmitComplaintRequest
	var sub services.Submission

	multipartBody := strings.HasPrefix(c.ContentType(), "multipart/form-data")
	var err error
	if multipartBody {
		err = c.ShouldBind(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		return sub, http.StatusBadRequest, ErrCodeValidation, fieldMessage(invalid)
	case err != nil && multipartBody:
		return sub, http.StatusBadRequest, ErrCodeBadRequest, "invalid form body"
	case err != nil:
		return sub, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body"
	}
	if _, email, signedIn := middleware.CitizenFrom(c); signedIn && strings.TrimSpace(req.ContactEmail) == "" {
		req.ContactEmail = email
	}

	sub = services.Submission{
		Text:         req.Description,
		Location:     req.Location,
		District:     req.District,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Language:     req.Language,
		Notes:        req.Notes,
	}
	if !multipartBody {
		return sub, 0, "", ""
	}

	for _, part := range []struct {
		field string
		dst   *[]byte
	}{{"image", &sub.Image}, {"audio", &sub.Audio}} {
		fh, err := c.FormFile(part.field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return sub, http.StatusBadRequest, ErrCodeBadRequest, "invalid " + part.field + " upload"
		}
		data, err := readUpload(fh, h.maxUpload)
		if errors.Is(err, errUploadTooLarge) {
			return sub, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
				fmt.Sprintf("%s exceeds %d bytes", part.field, h.maxUpload)
		}
		if err != nil {
			return sub, http.StatusBadRequest, ErrCodeBadRequest, "unreadable " + part.field + " upload"
		}
		*part.dst = data
	}
	return sub, 0, "", ""
}

// fieldMessage reports the first failed binding rule in client terms.
func fieldMessage(errs validator.ValidationErrors) string {
	fe := errs[0]
	switch fe.Tag() {
	case "email":
		return "contact_email must be a plain e-mail address"
	case "required":
		return strings.ToLower(fe.Field()) + " is required"
	case "max", "min":
		return strings.ToLower(fe.Field()) + " has an invalid length"
	}
	return strings.ToLower(fe.Field()) + " is invalid"
}

// replay serves a previously filed complaint for a repeated Idempotency-Key.
// It reports whether a response was written.
func (h *Handlers) replay(c *gin.Context, key string) bool {
	if h.idem == nil || key == "" {
		return false
	}
	ctx := c.Request.Context()
	rec, err := h.idem.Lookup(ctx, middleware.ClientID(c), key, time.Now().UTC())
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup")
		return false
	}
	if rec == nil {
		return false
	}
	prev, err := h.complaints.Get(ctx, rec.TrackingID)
	if err != nil {
		return false
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, rec.Status, SubmitComplaintResponse{TrackingID: prev.TrackingID, Complaint: prev})
	return true
}

// validTrackingID rejects malformed tracking IDs with 404 before touching
// the store.
func validTrackingID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if !trackingid.LooksValid(id) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "complaint not found")
		return "", false
	}
	return strings.ToUpper(id), true
}

//
// Handlers
//

// SubmitComplaint godoc
// @ID          submitComplaint
// @Summary     File a complaint
// @Description Files a civic complaint from a description, a photo or a voice note.
// @Description The issue is classified automatically and routed to a department.
// @Description Supports idempotency via the Idempotency-Key header (same key → same complaint).
// @Tags        Complaints
// @Accept      json,mpfd
// @Produce     json
//
// @Param       Idempotency-Key  header    string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body      handlers.SubmitComplaintRequest  false "Complaint (JSON)"
// @Param       image            formData  file    false "Photo of the issue"
// @Param       audio            formData  file    false "Voice note describing the issue"
//
// @Success     201  {object}  handlers.SubmitComplaintResponse  "Complaint filed"
// @Success     200  {object}  handlers.SubmitComplaintResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid citizen token"
// @Failure     413  {object}  handlers.ErrorResponse  "Upload too large"
// @Failure     415  {object}  handlers.ErrorResponse  "Unsupported media"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /complaints [post]
func (h *Handlers) SubmitComplaint(c *gin.Context) {
	ctx := c.Request.Context()
	key, _ := middleware.GetIdempotencyKey(c)

	if h.replay(c, key) {
		return
	}

	sub, status, code, msg := h.bindSubmission(c)
	if status != 0 {
		fail(c, status, code, msg)
		return
	}

	cmp, err := h.complaints.Submit(ctx, sub)
	if err != nil {
		serviceError(c, err, ErrCodeSubmitFailed)
		return
	}

	// Idempotency (store path) – best effort.
	if key != "" && h.idem != nil {
		if err := h.idem.Remember(ctx, middleware.ClientID(c), key, cmp.TrackingID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("tracking_id", cmp.TrackingID).Msg("idempotency store")
		}
	}

	c.Header("Location", "complaints/"+cmp.TrackingID)
	ok(c, http.StatusCreated, SubmitComplaintResponse{TrackingID: cmp.TrackingID, Complaint: cmp})
}

// GetComplaint godoc
// @ID          getComplaint
// @Summary     Track a complaint
// @Description Returns the complaint with the given tracking ID.
// @Tags        Complaints
// @Produce     json
// @Param       id   path  string  true  "Tracking ID"  example(CIV-04839217)
// @Success     200  {object}  domain.Complaint
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /complaints/{id} [get]
func (h *Handlers) GetComplaint(c *gin.Context) {
	id, valid := validTrackingID(c)
	if !valid {
		return
	}
	cmp, err := h.complaints.Get(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err, ErrCodeLookupFailed)
		return
	}
	ok(c, http.StatusOK, cmp)
}

// ComplaintHistory godoc
// @ID          complaintHistory
// @Summary     Status timeline
// @Description Returns every status change of a complaint, newest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Complaints
// @Produce     json
// @Param       id             path    string  true  "Tracking ID"  example(CIV-04839217)
// @Param       If-None-Match  header  string  false "Weak ETag from a previous response"
// @Success     200  {object}  handlers.HistoryResponse
// @Success     304  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /complaints/{id}/history [get]
func (h *Handlers) ComplaintHistory(c *gin.Context) {
	ctx := c.Request.Context()
	id, valid := validTrackingID(c)
	if !valid {
		return
	}

	// ETag pre-check (best effort). Every complaint has at least its Pending
	// entry, so an empty count means the tracking ID is unknown.
	if count, maxTS, err := h.complaints.HistoryVersion(ctx, id); err == nil && count > 0 {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"history:%s:%d:%d"`, id, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	updates, err := h.complaints.History(ctx, id)
	if err != nil {
		serviceError(c, err, ErrCodeLookupFailed)
		return
	}
	ok(c, http.StatusOK, HistoryResponse{TrackingID: id, Updates: updates})
}

// ComplaintLetter godoc
// @ID          complaintLetter
// @Summary     Formal complaint letter
// @Description Drafts a formal letter to the responsible department.
// @Description Falls back to a fixed template when the language model is unavailable.
// @Tags        Complaints
// @Produce     json,plain
// @Param       id      path   string  true  "Tracking ID"  example(CIV-04839217)
// @Param       lang    query  string  false "Letter language (en or ur); defaults to the complaint's language"
// @Param       format  query  string  false "json (default) or text"  Enums(json, text)
// @Success     200  {object}  handlers.LetterResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /complaints/{id}/letter [get]
func (h *Handlers) ComplaintLetter(c *gin.Context) {
	id, valid := validTrackingID(c)
	if !valid {
		return
	}
	text, tag, templated, err := h.complaints.Letter(c.Request.Context(), id, c.Query("lang"))
	if err != nil {
		serviceError(c, err, ErrCodeLookupFailed)
		return
	}
	if strings.EqualFold(c.Query("format"), "text") {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-letter.txt"`, id))
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
		return
	}
	ok(c, http.StatusOK, LetterResponse{TrackingID: id, Language: tag.String(), Templated: templated, Letter: text})
}

// ListMyComplaints godoc
// @ID          listMyComplaints
// @Summary     List my complaints
// @Description Returns the complaints filed with the signed-in citizen's e-mail, newest first.
// @Tags        Complaints
// @Produce     json
// @Security    BearerAuth
// @Param       page       query  int  false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListComplaintsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a citizen token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /complaints [get]
func (h *Handlers) ListMyComplaints(c *gin.Context) {
	userID, _, signedIn := middleware.CitizenFrom(c)
	if !signedIn {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in to list your complaints")
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.citizens.Complaints(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, ListComplaintsResponse{Complaints: items, Pagination: newPagination(page, pageSize, total)})
}

// ClassifyText godoc
// @ID          classifyText
// @Summary     Preview classification
// @Description Classifies free text into issue type, severity and department without filing a complaint.
// @Tags        Complaints
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.ClassifyRequest  true  "Text to classify"
// @Success     200  {object}  classify.Result
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /classify [post]
func (h *Handlers) ClassifyText(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	res := h.classifier.ClassifyText(c.Request.Context(), req.Text, letter.Match(req.Language))
	ok(c, http.StatusOK, res)
}

// DepartmentsResponse is the routing directory.
type DepartmentsResponse struct {
	Departments []domain.Department `json:"departments"`
}

// ListDepartments godoc
// @ID          listDepartments
// @Summary     Department directory
// @Description Lists every department and the issue types routed to it.
// @Tags        Complaints
// @Produce     json
// @Success     200  {object}  handlers.DepartmentsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /departments [get]
func (h *Handlers) ListDepartments(c *gin.Context) {
	depts, err := h.complaints.Departments(c.Request.Context())
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, DepartmentsResponse{Departments: depts})
}
