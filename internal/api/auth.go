package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/identity"
)

type studentRegisterRequest struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=6"`
	Gender       string `json:"gender" binding:"omitempty,oneof=Male Female Other"`
	DOB          string `json:"dob"`
	RollNo       string `json:"rollNo" binding:"required"`
	Division     string `json:"division"`
	Batch        string `json:"batch"`
	Year         string `json:"year"`
	MobileNumber string `json:"mobileNumber" binding:"omitempty,mobile"`
	FaceImage    string `json:"faceImage" binding:"required"`
}

type facultyRegisterRequest struct {
	Name         string   `json:"name" binding:"required"`
	Email        string   `json:"email" binding:"required,email"`
	Password     string   `json:"password" binding:"required,min=6"`
	Gender       string   `json:"gender" binding:"omitempty,oneof=Male Female Other"`
	DOB          string   `json:"dob"`
	EmployeeID   string   `json:"employeeId" binding:"required"`
	Department   string   `json:"department"`
	Designation  string   `json:"designation"`
	MobileNumber string   `json:"mobileNumber" binding:"omitempty,mobile"`
	Subjects     []string `json:"subjects"`
	FaceImage    string   `json:"faceImage" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// userView is the public summary of an account returned by the auth routes.
func userView(acc *identity.Account) gin.H {
	u := gin.H{"id": acc.ID(), "email": acc.Email(), "role": acc.Role}
	switch {
	case acc.Student != nil:
		s := acc.Student
		u["name"] = s.Name
		u["rollNo"] = s.RollNo
		u["division"] = s.Division
		u["batch"] = s.Batch
		u["year"] = s.Year
	case acc.Faculty != nil:
		f := acc.Faculty
		u["name"] = f.Name
		u["employeeId"] = f.EmployeeID
		u["department"] = f.Department
		u["designation"] = f.Designation
	}
	return u
}

// issue signs a token pair for acc and records the refresh session.
func (h *Handler) issue(c *gin.Context, acc *identity.Account) (gin.H, error) {
	pair, err := h.Tokens.Issue(auth.Principal{ID: acc.ID(), Role: acc.Role, Email: acc.Email()})
	if err != nil {
		return nil, err
	}
	if err := h.Sessions.Save(c.Request.Context(), pair.RefreshID, acc.ID(), h.Tokens.RefreshTTL); err != nil {
		return nil, err
	}
	return gin.H{
		"token":            pair.AccessToken,
		"refreshToken":     pair.RefreshToken,
		"expiresAt":        pair.AccessExp,
		"refreshExpiresAt": pair.RefreshExp,
		"user":             userView(acc),
	}, nil
}

func (h *Handler) RegisterStudent(c *gin.Context) {
	var req studentRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	st, err := h.Identities.RegisterStudent(c.Request.Context(), identity.StudentRegistration{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Gender:       req.Gender,
		DOB:          req.DOB,
		RollNo:       req.RollNo,
		Division:     req.Division,
		Batch:        req.Batch,
		Year:         req.Year,
		MobileNumber: req.MobileNumber,
		FaceImage:    req.FaceImage,
	})
	if err != nil {
		h.abortErr(c, "register student", err)
		return
	}
	data, err := h.issue(c, &identity.Account{Role: identity.RoleStudent, Student: st})
	if err != nil {
		h.abortErr(c, "issue token", err)
		return
	}
	ok(c, http.StatusCreated, "Student registered successfully", data)
}

func (h *Handler) RegisterFaculty(c *gin.Context) {
	var req facultyRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	f, err := h.Identities.RegisterFaculty(c.Request.Context(), identity.FacultyRegistration{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Gender:       req.Gender,
		DOB:          req.DOB,
		EmployeeID:   req.EmployeeID,
		Department:   req.Department,
		Designation:  req.Designation,
		MobileNumber: req.MobileNumber,
		Subjects:     req.Subjects,
		FaceImage:    req.FaceImage,
	})
	if err != nil {
		h.abortErr(c, "register faculty", err)
		return
	}
	data, err := h.issue(c, &identity.Account{Role: identity.RoleFaculty, Faculty: f})
	if err != nil {
		h.abortErr(c, "issue token", err)
		return
	}
	ok(c, http.StatusCreated, "Faculty registered successfully", data)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	acc, err := h.Identities.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.abortErr(c, "login", err)
		return
	}
	data, err := h.issue(c, acc)
	if err != nil {
		h.abortErr(c, "issue token", err)
		return
	}
	ok(c, http.StatusOK, "Login successful", data)
}

func (h *Handler) Verify(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	acc, err := h.Identities.Lookup(c.Request.Context(), p.Role, p.ID)
	if errors.Is(err, identity.ErrNotFound) {
		fail(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	if err != nil {
		h.abortErr(c, "verify", err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"user": userView(acc)})
}

// Refresh rotates a refresh token: the presented session is consumed and a new pair issued.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	claims, err := h.Tokens.Parse(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		fail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	subject, err := h.Sessions.Consume(c.Request.Context(), claims.ID)
	if err != nil {
		h.abortErr(c, "consume session", err)
		return
	}
	if subject == "" || subject != claims.Subject {
		fail(c, http.StatusUnauthorized, "Refresh token revoked or expired")
		return
	}
	acc, err := h.Identities.Lookup(c.Request.Context(), claims.Role, claims.Subject)
	if errors.Is(err, identity.ErrNotFound) {
		fail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err != nil {
		h.abortErr(c, "refresh", err)
		return
	}
	data, err := h.issue(c, acc)
	if err != nil {
		h.abortErr(c, "issue token", err)
		return
	}
	ok(c, http.StatusOK, "", data)
}

// Logout revokes a refresh token. Revoking an already revoked token succeeds.
func (h *Handler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	claims, err := h.Tokens.Parse(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		fail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err := h.Sessions.Revoke(c.Request.Context(), claims.ID); err != nil {
		h.abortErr(c, "revoke session", err)
		return
	}
	ok(c, http.StatusOK, "Logged out", nil)
}
