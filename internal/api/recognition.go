package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/identity"
)

type recognizeRequest struct {
	Image    string `json:"image"`
	Subject  string `json:"subject"`
	Class    string `json:"class"`
	Division string `json:"division"`
}

// Recognize marks attendance for the student matched in the submitted capture.
func (h *Handler) Recognize(c *gin.Context) {
	var req recognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, _ := auth.PrincipalFrom(c)
	res, err := h.Attendance.RecognizeAndRecord(c.Request.Context(), attendance.Capture{
		Image:    req.Image,
		Subject:  req.Subject,
		Class:    req.Class,
		Division: req.Division,
	}, p.ID)
	if err != nil {
		h.abortErr(c, "recognize", err)
		return
	}
	ok(c, http.StatusOK, "Attendance marked successfully", res)
}

func (h *Handler) QueryAttendance(c *gin.Context) {
	f, msg := parseFilter(c)
	if msg != "" {
		fail(c, http.StatusBadRequest, msg)
		return
	}
	if p, _ := auth.PrincipalFrom(c); p.Role == identity.RoleStudent {
		f.StudentID = p.ID
	}
	h.query(c, f)
}

// StudentAttendance returns one student's history. Students only ever see their own.
func (h *Handler) StudentAttendance(c *gin.Context) {
	f, msg := parseFilter(c)
	if msg != "" {
		fail(c, http.StatusBadRequest, msg)
		return
	}
	p, _ := auth.PrincipalFrom(c)
	if p.Role == identity.RoleStudent {
		f.StudentID = p.ID
	}
	if f.StudentID == "" {
		fail(c, http.StatusBadRequest, "studentId is required")
		return
	}
	h.query(c, f)
}

// ClassAttendance returns a class roll. date selects one day; otherwise startDate and endDate apply.
func (h *Handler) ClassAttendance(c *gin.Context) {
	f, msg := parseFilter(c)
	if msg != "" {
		fail(c, http.StatusBadRequest, msg)
		return
	}
	if f.Class == "" {
		fail(c, http.StatusBadRequest, "className is required")
		return
	}
	if v := c.Query("date"); v != "" {
		day, err := identity.ParseDate(v)
		if err != nil {
			fail(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = day.Truncate(24 * time.Hour)
		f.StartDate = day
		f.EndDate = endOfDay(day)
	}
	h.query(c, f)
}

func (h *Handler) query(c *gin.Context, f attendance.Filter) {
	recs, err := h.Attendance.Query(c.Request.Context(), f)
	if err != nil {
		h.abortErr(c, "query attendance", err)
		return
	}
	ok(c, http.StatusOK, "", recs)
}

// parseFilter reads the shared query parameters. A non-empty string is a client error.
func parseFilter(c *gin.Context) (attendance.Filter, string) {
	f := attendance.Filter{
		StudentID: c.Query("studentId"),
		Subject:   c.Query("subject"),
		Class:     firstOf(c.Query("className"), c.Query("class")),
		Division:  c.Query("division"),
		FacultyID: c.Query("facultyId"),
	}
	if v := c.Query("startDate"); v != "" {
		t, err := identity.ParseDate(v)
		if err != nil {
			return f, "startDate must be YYYY-MM-DD or RFC 3339"
		}
		f.StartDate = t
	}
	if v := c.Query("endDate"); v != "" {
		t, err := identity.ParseDate(v)
		if err != nil {
			return f, "endDate must be YYYY-MM-DD or RFC 3339"
		}
		if !strings.Contains(v, "T") {
			t = endOfDay(t)
		}
		f.EndDate = t
	}
	var err error
	if f.Limit, err = nonNegative(c.Query("limit")); err != nil {
		return f, "limit must be a non-negative integer"
	}
	if f.Offset, err = nonNegative(c.Query("offset")); err != nil {
		return f, "offset must be a non-negative integer"
	}
	return f, ""
}

func endOfDay(day time.Time) time.Time {
	return day.Add(24*time.Hour - time.Nanosecond)
}

func nonNegative(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// FaceServiceHealth proxies the face service's health document.
func (h *Handler) FaceServiceHealth(c *gin.Context) {
	doc, err := h.Face.Health(c.Request.Context())
	if err != nil {
		h.Logger.Warn("face service health check failed", "error", err)
		fail(c, http.StatusServiceUnavailable, "Face recognition service is unavailable")
		return
	}
	ok(c, http.StatusOK, "", doc)
}

func (h *Handler) TestConnection(c *gin.Context) {
	doc, err := h.Face.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Cannot connect to face recognition service",
			"error":   err.Error(),
			"url":     h.FaceServiceURL,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "Face recognition service is reachable",
		"serviceResponse": doc,
	})
}
