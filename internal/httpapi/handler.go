package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/directory"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/scan"
	"qrattend/internal/token"
	"qrattend/internal/window"
)

// Deps are the collaborators the handlers use. Queue, Tally and Metrics may
// be nil.
type Deps struct {
	Issuer    *token.Issuer
	Verifier  *scan.Verifier
	Records   attendance.Recorder
	Directory directory.Directory
	Queue     queue.Queue
	Tally     *attendance.Tally
	Metrics   *metrics.Metrics
}

// Handler serves the attendance API.
type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	return &Handler{Deps: d}
}

// Register mounts the API. authn must set auth claims; scanLimit guards the
// scan endpoint and may be nil.
func (h *Handler) Register(r gin.IRouter, authn, scanLimit gin.HandlerFunc) {
	v1 := r.Group("/v1", authn)

	participant := v1.Group("", auth.RequireRole(auth.RoleParticipant))
	participant.POST("/activities/:activityID/tokens", h.IssueToken)
	participant.GET("/activities/:activityID/attendance/me", h.MyAttendance)

	staff := v1.Group("", auth.RequireRole(auth.RoleStaff))
	scanChain := []gin.HandlerFunc{h.Scan}
	if scanLimit != nil {
		scanChain = append([]gin.HandlerFunc{scanLimit}, scanChain...)
	}
	staff.POST("/scans", scanChain...)
	staff.GET("/activities/:activityID/attendance", h.ListAttendance)
	staff.GET("/activities/:activityID/summary", h.Summary)
}

type tokenResponse struct {
	Payload    string    `json:"payload"`
	ExpiresAt  time.Time `json:"expires_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// IssueToken mints a token for the signed-in participant. ?format=png returns
// the QR code image instead of JSON.
func (h *Handler) IssueToken(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	activityID := c.Param("activityID")
	ctx := c.Request.Context()

	if _, err := h.Directory.GetParticipant(ctx, claims.Subject); err != nil {
		h.Metrics.TokenIssued(false)
		lookupError(c, err)
		return
	}
	if _, err := h.Directory.GetActivity(ctx, activityID); err != nil {
		h.Metrics.TokenIssued(false)
		lookupError(c, err)
		return
	}

	tok, err := h.Issuer.Issue(claims.Subject, activityID)
	if err != nil {
		h.Metrics.TokenIssued(false)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Metrics.TokenIssued(true)
	payload := token.Encode(tok)

	if c.Query("format") == "png" {
		png, err := qrcode.Encode(payload, qrcode.Medium, 256)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
			return
		}
		c.Header("X-Token-Expires-At", strconv.FormatInt(tok.ExpiresAt, 10))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/png", png)
		return
	}

	c.JSON(http.StatusCreated, tokenResponse{
		Payload:    payload,
		ExpiresAt:  tok.Expiry().UTC(),
		TTLSeconds: int(h.Issuer.TTL() / time.Second),
	})
}

// MyAttendance reports whether the signed-in participant has been recorded.
func (h *Handler) MyAttendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	rec, err := h.Records.Get(c.Request.Context(), c.Param("activityID"), claims.Subject)
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusOK, gin.H{"recorded": false})
	case err != nil:
		storeError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"recorded": true, "record": rec})
	}
}

type scanRequest struct {
	ActivityID string `json:"activity_id" binding:"required"`
	Payload    string `json:"payload" binding:"required"`
}

// Scan verifies a scanned payload for the selected activity and records it.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)

	rec, err := h.Verifier.Verify(c.Request.Context(), scan.Request{
		Payload:    req.Payload,
		ActivityID: req.ActivityID,
		StaffID:    claims.Subject,
	})
	res := scan.NewResult(rec, err, time.Now().UTC())
	if err != nil {
		log.Printf("scan by %s for %s rejected: %s: %v", claims.Subject, req.ActivityID, res.Outcome, err)
		c.JSON(statusFor(res.Outcome), res)
		return
	}

	h.publish(rec)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) publish(rec attendance.Record) {
	if h.Queue == nil {
		return
	}
	msg, err := queue.NewJSON(queue.TypeAttendanceRecorded, rec)
	if err != nil {
		log.Printf("encode record %s: %v", rec.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Queue.Publish(ctx, msg); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// listedRecord flags late scans that arrived after the grace period so an
// administrator can review them.
type listedRecord struct {
	attendance.Record
	PastTolerance bool `json:"past_tolerance,omitempty"`
}

// ListAttendance returns an activity's records for reporting and export.
func (h *Handler) ListAttendance(c *gin.Context) {
	activityID := c.Param("activityID")
	ctx := c.Request.Context()
	activity, err := h.Directory.GetActivity(ctx, activityID)
	if err != nil {
		lookupError(c, err)
		return
	}
	records, err := h.Records.List(ctx, activityID)
	if err != nil {
		storeError(c, err)
		return
	}
	out := make([]listedRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, listedRecord{
			Record:        rec,
			PastTolerance: rec.Status == window.Late && !window.WithinTolerance(activity.Window, rec.RecordedAt),
		})
	}
	c.JSON(http.StatusOK, gin.H{"activity_id": activityID, "records": out})
}

// Summary returns per-status counts kept by the worker.
func (h *Handler) Summary(c *gin.Context) {
	if h.Tally == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summary not configured"})
		return
	}
	sum, err := h.Tally.Summary(c.Request.Context(), c.Param("activityID"))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"activity_id": sum.ActivityID,
		"present":     sum.Present,
		"late":        sum.Late,
		"total":       sum.Total(),
	})
}

func statusFor(o scan.Outcome) int {
	switch o {
	case scan.OutcomeRecorded:
		return http.StatusCreated
	case scan.OutcomeMalformed:
		return http.StatusBadRequest
	case scan.OutcomeSignatureMismatch:
		return http.StatusUnprocessableEntity
	case scan.OutcomeExpired:
		return http.StatusGone
	case scan.OutcomeActivityMismatch, scan.OutcomeDuplicate:
		return http.StatusConflict
	case scan.OutcomeParticipantNotFound, scan.OutcomeActivityNotFound:
		return http.StatusNotFound
	case scan.OutcomeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func lookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrParticipantNotFound), errors.Is(err, directory.ErrActivityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		storeError(c, err)
	}
}

func storeError(c *gin.Context, err error) {
	log.Printf("store error on %s: %v", c.FullPath(), err)
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
}
