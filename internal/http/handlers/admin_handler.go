// Admin HTTP handlers.
//
// This file exposes the operator endpoints:
//   - POST  /admin/login                            (issue a bearer token)
//   - GET   /admin/complaints                       (filtered, paginated list)
//   - GET   /admin/complaints/export                (CSV or XLSX download)
//   - PATCH /admin/complaints/{id}/status           (status transition)
//   - GET   /admin/complaints/{id}/next-statuses    (reachable statuses)
//   - GET   /admin/complaints/{id}/notifications    (delivery log)
//   - GET   /admin/stats                            (dashboard aggregates)
//   - GET   /admin/activity                         (audit trail)
//
// Everything except login runs behind middleware.RequireAdmin.
package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/http/middleware"
	"github.com/tbourn/civic-complaints-backend/internal/services"
	"github.com/tbourn/civic-complaints-backend/internal/utils"
)

//
// DTOs
//

// LoginRequest is the operator sign-in payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"ops"`
	Password string `json:"password" binding:"required" example:"correct horse battery staple"`
}

// UpdateStatusRequest moves a complaint to a new status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required" example:"In Progress"`
	Notes  string `json:"notes" example:"Crew dispatched"`
}

// NextStatusesResponse lists the statuses reachable from the current one.
type NextStatusesResponse struct {
	TrackingID string          `json:"tracking_id"`
	Next       []domain.Status `json:"next"`
}

// NotificationsResponse is the delivery log of one complaint.
type NotificationsResponse struct {
	TrackingID    string                   `json:"tracking_id"`
	Notifications []domain.NotificationLog `json:"notifications"`
}

// ActivityResponse is the newest-first audit trail.
type ActivityResponse struct {
	Activity []domain.AdminActivity `json:"activity"`
}

//
// Helpers
//

// parseDate accepts RFC 3339 timestamps or YYYY-MM-DD dates in loc. A date
// given as an upper bound covers the whole day.
func parseDate(v string, loc *time.Location, upper bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// listFilter reads the shared admin filter query parameters. Enum values
// are validated by the service.
func (h *Handlers) listFilter(c *gin.Context) (services.ListFilter, bool) {
	f := services.ListFilter{
		Status:    c.Query("status"),
		IssueType: c.Query("issue_type"),
		Severity:  c.Query("severity"),
		District:  c.Query("district"),
	}
	var err error
	if f.Since, err = parseDate(c.Query("since"), h.loc, false); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "since must be YYYY-MM-DD or RFC 3339")
		return f, false
	}
	if f.Until, err = parseDate(c.Query("until"), h.loc, true); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "until must be YYYY-MM-DD or RFC 3339")
		return f, false
	}
	return f, true
}

func actorFrom(c *gin.Context) services.Actor {
	id, username := middleware.AdminFrom(c)
	return services.Actor{ID: id, Username: username}
}

//
// Handlers
//

// AdminLogin godoc
// @ID          adminLogin
// @Summary     Operator sign-in
// @Description Exchanges operator credentials for a bearer token.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  services.LoginResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/login [post]
func (h *Handlers) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}
	res, err := h.admin.Login(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}

// AdminListComplaints godoc
// @ID          adminListComplaints
// @Summary     List complaints
// @Description Returns a filtered page of complaints, newest first.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       status      query  string  false "Status"      Enums(Pending, Under Review, Assigned, In Progress, Resolved, Rejected)
// @Param       issue_type  query  string  false "Issue type"
// @Param       severity    query  string  false "Severity"    Enums(Low, Medium, High)
// @Param       district    query  string  false "District"
// @Param       since       query  string  false "Created on or after (YYYY-MM-DD or RFC 3339)"
// @Param       until       query  string  false "Created before the end of (YYYY-MM-DD) or before (RFC 3339)"
// @Param       page        query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size   query  int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListComplaintsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid filter"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/complaints [get]
func (h *Handlers) AdminListComplaints(c *gin.Context) {
	f, valid := h.listFilter(c)
	if !valid {
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.complaints.List(c.Request.Context(), f, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListComplaintsResponse{Complaints: items, Pagination: newPagination(page, pageSize, total)})
}

// UpdateComplaintStatus godoc
// @ID          updateComplaintStatus
// @Summary     Change complaint status
// @Description Moves a complaint along the status graph, records history and notifies the citizen.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                          true  "Tracking ID"  example(CIV-04839217)
// @Param       body  body  handlers.UpdateStatusRequest    true  "Target status"
// @Success     200  {object}  domain.Complaint
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Transition not allowed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/complaints/{id}/status [patch]
func (h *Handlers) UpdateComplaintStatus(c *gin.Context) {
	id, valid := validTrackingID(c)
	if !valid {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	cmp, err := h.status.UpdateStatus(c.Request.Context(), actorFrom(c), id, req.Status, req.Notes)
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, cmp)
}

// NextStatuses godoc
// @ID          nextStatuses
// @Summary     Reachable statuses
// @Description Lists the statuses a complaint may move to next; empty for terminal statuses.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Tracking ID"  example(CIV-04839217)
// @Success     200  {object}  handlers.NextStatusesResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Router      /admin/complaints/{id}/next-statuses [get]
func (h *Handlers) NextStatuses(c *gin.Context) {
	id, valid := validTrackingID(c)
	if !valid {
		return
	}
	next, err := h.status.NextStatuses(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err, ErrCodeLookupFailed)
		return
	}
	if next == nil {
		next = []domain.Status{}
	}
	ok(c, http.StatusOK, NextStatusesResponse{TrackingID: id, Next: next})
}

// ComplaintNotifications godoc
// @ID          complaintNotifications
// @Summary     Notification log
// @Description Lists every e-mail and SMS attempt made for a complaint.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Tracking ID"  example(CIV-04839217)
// @Success     200  {object}  handlers.NotificationsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Router      /admin/complaints/{id}/notifications [get]
func (h *Handlers) ComplaintNotifications(c *gin.Context) {
	id, valid := validTrackingID(c)
	if !valid {
		return
	}
	logs, err := h.admin.Notifications(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err, ErrCodeLookupFailed)
		return
	}
	ok(c, http.StatusOK, NotificationsResponse{TrackingID: id, Notifications: logs})
}

// AdminStats godoc
// @ID          adminStats
// @Summary     Dashboard statistics
// @Description Aggregates complaint counts by status, district, severity, type and department,
// @Description plus resolution rates and a daily series.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       status      query  string  false "Status"
// @Param       issue_type  query  string  false "Issue type"
// @Param       severity    query  string  false "Severity"
// @Param       district    query  string  false "District"
// @Param       since       query  string  false "Created on or after"
// @Param       until       query  string  false "Created before"
// @Success     200  {object}  services.Stats
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid filter"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/stats [get]
func (h *Handlers) AdminStats(c *gin.Context) {
	f, valid := h.listFilter(c)
	if !valid {
		return
	}
	st, err := h.stats.Stats(c.Request.Context(), f)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, st)
}

// AdminActivity godoc
// @ID          adminActivity
// @Summary     Audit trail
// @Description Returns the newest operator actions first.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query  int  false "Maximum rows"  minimum(1) maximum(500) default(100)
// @Success     200  {object}  handlers.ActivityResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/activity [get]
func (h *Handlers) AdminActivity(c *gin.Context) {
	rows, err := h.admin.Activity(c.Request.Context(), utils.AtoiDefault(c.Query("limit"), 100))
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ActivityResponse{Activity: rows})
}

// ExportComplaints godoc
// @ID          exportComplaints
// @Summary     Export complaints
// @Description Downloads the filtered complaints as an Excel workbook (with a summary sheet) or CSV.
// @Tags        Admin
// @Produce     octet-stream
// @Security    BearerAuth
// @Param       format      query  string  false "xlsx (default) or csv"  Enums(xlsx, csv)
// @Param       status      query  string  false "Status"
// @Param       issue_type  query  string  false "Issue type"
// @Param       severity    query  string  false "Severity"
// @Param       district    query  string  false "District"
// @Param       since       query  string  false "Created on or after"
// @Param       until       query  string  false "Created before"
// @Success     200  {file}    file
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid filter or format"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/complaints/export [get]
func (h *Handlers) ExportComplaints(c *gin.Context) {
	f, valid := h.listFilter(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "xlsx")))

	var buf bytes.Buffer
	var ctype string
	var err error
	switch format {
	case "xlsx":
		ctype = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = h.export.XLSX(ctx, f, &buf)
	case "csv":
		ctype = "text/csv; charset=utf-8"
		err = h.export.CSV(ctx, f, &buf)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "format must be xlsx or csv")
		return
	}
	if err != nil {
		serviceError(c, err, ErrCodeExportFailed)
		return
	}

	adminID, _ := middleware.AdminFrom(c)
	h.admin.Record(ctx, adminID, "export", "", fmt.Sprintf("%s, %d bytes", format, buf.Len()))

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, h.export.FileName(format)))
	c.Data(http.StatusOK, ctype, buf.Bytes())
}
