package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/identity"
)

type studentUpdateRequest struct {
	Name         *string `json:"name"`
	Gender       *string `json:"gender" binding:"omitempty,oneof=Male Female Other"`
	Division     *string `json:"division"`
	Batch        *string `json:"batch"`
	Year         *string `json:"year"`
	MobileNumber *string `json:"mobileNumber" binding:"omitempty,mobile"`
}

func (h *Handler) StudentProfile(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	st, err := h.Identities.Student(c.Request.Context(), p.ID)
	if err != nil {
		h.abortErr(c, "student profile", err)
		return
	}
	ok(c, http.StatusOK, "", st)
}

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.Identities.Students(c.Request.Context(), identity.StudentFilter{
		Division: c.Query("division"),
		Batch:    c.Query("batch"),
		Year:     c.Query("year"),
	})
	if err != nil {
		h.abortErr(c, "list students", err)
		return
	}
	ok(c, http.StatusOK, "", students)
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.Identities.Student(c.Request.Context(), c.Param("id"))
	if errors.Is(err, identity.ErrNotFound) {
		fail(c, http.StatusNotFound, "Student not found")
		return
	}
	if err != nil {
		h.abortErr(c, "get student", err)
		return
	}
	ok(c, http.StatusOK, "", st)
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	var req studentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	st, err := h.Identities.UpdateStudent(c.Request.Context(), c.Param("id"), identity.StudentUpdate{
		Name:         req.Name,
		Gender:       req.Gender,
		Division:     req.Division,
		Batch:        req.Batch,
		Year:         req.Year,
		MobileNumber: req.MobileNumber,
	})
	if errors.Is(err, identity.ErrNotFound) {
		fail(c, http.StatusNotFound, "Student not found")
		return
	}
	if err != nil {
		h.abortErr(c, "update student", err)
		return
	}
	ok(c, http.StatusOK, "Student updated successfully", st)
}

func (h *Handler) FacultyProfile(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	acc, err := h.Identities.Lookup(c.Request.Context(), identity.RoleFaculty, p.ID)
	if err != nil {
		h.abortErr(c, "faculty profile", err)
		return
	}
	ok(c, http.StatusOK, "", acc.Faculty)
}

func (h *Handler) ListFaculty(c *gin.Context) {
	faculty, err := h.Identities.FacultyMembers(c.Request.Context())
	if err != nil {
		h.abortErr(c, "list faculty", err)
		return
	}
	ok(c, http.StatusOK, "", faculty)
}
