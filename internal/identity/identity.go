// Package identity holds registered students and faculty and the rules for creating them.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrDuplicateKey is returned when the email or external id is already registered.
	ErrDuplicateKey = errors.New("identity with this email or id already exists")
	// ErrNotFound is returned by lookups that require a match.
	ErrNotFound = errors.New("identity not found")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation wraps field-level registration problems.
	ErrValidation = errors.New("invalid registration")
)

// Roles carried in tokens.
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
)

// Student is a registered student. RollNo is the enrollment key the face service knows.
type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Gender        string    `json:"gender,omitempty"`
	DOB           time.Time `json:"dob"`
	RollNo        string    `json:"rollNo"`
	Division      string    `json:"division,omitempty"`
	Batch         string    `json:"batch,omitempty"`
	Year          string    `json:"year,omitempty"`
	MobileNumber  string    `json:"mobileNumber,omitempty"`
	FaceEmbedding []float32 `json:"-"`
	FaceImage     string    `json:"faceImage,omitempty"`
	IsVerified    bool      `json:"isVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Faculty is a registered faculty member. EmployeeID is the enrollment key.
type Faculty struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Gender        string    `json:"gender,omitempty"`
	DOB           time.Time `json:"dob"`
	EmployeeID    string    `json:"employeeId"`
	Department    string    `json:"department,omitempty"`
	Designation   string    `json:"designation,omitempty"`
	MobileNumber  string    `json:"mobileNumber,omitempty"`
	Subjects      []string  `json:"subjects"`
	FaceEmbedding []float32 `json:"-"`
	FaceImage     string    `json:"faceImage,omitempty"`
	IsVerified    bool      `json:"isVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MarshalJSON leaves dob out when it was never given.
func (s Student) MarshalJSON() ([]byte, error) {
	type plain Student
	return json.Marshal(struct {
		plain
		DOB *time.Time `json:"dob,omitempty"`
	}{plain: plain(s), DOB: optionalTime(s.DOB)})
}

// MarshalJSON leaves dob out when it was never given.
func (f Faculty) MarshalJSON() ([]byte, error) {
	type plain Faculty
	return json.Marshal(struct {
		plain
		DOB *time.Time `json:"dob,omitempty"`
	}{plain: plain(f), DOB: optionalTime(f.DOB)})
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Keys selects an identity by email or external id; a record matching either is returned.
// Empty fields are ignored.
type Keys struct {
	Email      string
	ExternalID string
}

// Empty reports whether no key is set.
func (k Keys) Empty() bool {
	return k.Email == "" && k.ExternalID == ""
}

// StudentFilter narrows ListStudents. Empty fields match everything.
type StudentFilter struct {
	Division string
	Batch    string
	Year     string
}

// StudentUpdate carries the profile fields an administrator may change.
// Nil fields are left untouched.
type StudentUpdate struct {
	Name         *string
	Gender       *string
	Division     *string
	Batch        *string
	Year         *string
	MobileNumber *string
}

// Store persists identities. Find and Get return nil, nil when nothing matches.
type Store interface {
	FindStudent(ctx context.Context, keys Keys) (*Student, error)
	FindFaculty(ctx context.Context, keys Keys) (*Faculty, error)
	CreateStudent(ctx context.Context, s *Student) error
	CreateFaculty(ctx context.Context, f *Faculty) error
	GetStudent(ctx context.Context, id string) (*Student, error)
	GetFaculty(ctx context.Context, id string) (*Faculty, error)
	ListStudents(ctx context.Context, f StudentFilter) ([]Student, error)
	ListFaculty(ctx context.Context) ([]Faculty, error)
	UpdateStudent(ctx context.Context, id string, u StudentUpdate, at time.Time) (*Student, error)
}

// NormalizeEmail lower-cases and trims an address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Apply copies the set fields of u onto s.
func (u StudentUpdate) Apply(s *Student) {
	if u.Name != nil {
		s.Name = strings.TrimSpace(*u.Name)
	}
	if u.Gender != nil {
		s.Gender = *u.Gender
	}
	if u.Division != nil {
		s.Division = *u.Division
	}
	if u.Batch != nil {
		s.Batch = *u.Batch
	}
	if u.Year != nil {
		s.Year = *u.Year
	}
	if u.MobileNumber != nil {
		s.MobileNumber = *u.MobileNumber
	}
}

// Empty reports whether the update changes nothing.
func (u StudentUpdate) Empty() bool {
	return u.Name == nil && u.Gender == nil && u.Division == nil &&
		u.Batch == nil && u.Year == nil && u.MobileNumber == nil
}
