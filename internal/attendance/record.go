package attendance

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNoMatch means the face service returned no candidate at all.
	ErrNoMatch = errors.New("no face matched")
	// ErrUnknownIdentity means a candidate was returned but no student has that roll number.
	ErrUnknownIdentity = errors.New("recognized person is not registered")
	// ErrPersistence means the attendance record could not be written.
	ErrPersistence = errors.New("attendance record could not be saved")
	// ErrInvalidRange means a query's start date is after its end date.
	ErrInvalidRange = errors.New("start date is after end date")
	// ErrActorRequired means no acting faculty member was supplied.
	ErrActorRequired = errors.New("acting faculty is required")
)

// Status of an attendance record. Recognition only ever produces StatusPresent.
type Status string

const StatusPresent Status = "present"

// Record is one immutable attendance event. Student display fields are copied at
// write time so later profile edits leave history untouched.
type Record struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"studentId"`
	StudentRollNo string    `json:"studentRollNo"`
	StudentName   string    `json:"studentName"`
	Subject       string    `json:"subject"`
	FacultyID     string    `json:"facultyId"`
	Date          time.Time `json:"date"`
	EntryTime     time.Time `json:"entryTime"`
	Class         string    `json:"class"`
	Division      string    `json:"division"`
	Batch         string    `json:"batch"`
	Year          string    `json:"year"`
	Status        Status    `json:"status"`
}

// Session describes the lecture a capture belongs to.
type Session struct {
	Subject    string
	Class      string
	Division   string
	CapturedAt time.Time
}

// SessionDefaults fills in the session fields a caller leaves empty.
type SessionDefaults struct {
	Subject  string
	Class    string
	Division string
}

// DefaultSessionDefaults returns the stock values used when nothing is configured.
func DefaultSessionDefaults() SessionDefaults {
	return SessionDefaults{Subject: "General", Class: "10th Grade", Division: "A"}
}

// Apply returns s with empty fields replaced by the defaults.
func (d SessionDefaults) Apply(s Session) Session {
	if s.Subject == "" {
		s.Subject = d.Subject
	}
	if s.Class == "" {
		s.Class = d.Class
	}
	if s.Division == "" {
		s.Division = d.Division
	}
	return s
}

// Filter narrows a query. Zero values match everything; StartDate and EndDate are inclusive.
type Filter struct {
	StudentID string
	Subject   string
	Class     string
	Division  string
	FacultyID string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
	Offset    int
}

// Validate checks the filter is satisfiable.
func (f Filter) Validate() error {
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate) {
		return ErrInvalidRange
	}
	if f.Limit < 0 || f.Offset < 0 {
		return errors.New("limit and offset must not be negative")
	}
	return nil
}

// Matches reports whether r satisfies every set field of f.
func (f Filter) Matches(r Record) bool {
	if f.StudentID != "" && r.StudentID != f.StudentID {
		return false
	}
	if f.Subject != "" && r.Subject != f.Subject {
		return false
	}
	if f.Class != "" && r.Class != f.Class {
		return false
	}
	if f.Division != "" && r.Division != f.Division {
		return false
	}
	if f.FacultyID != "" && r.FacultyID != f.FacultyID {
		return false
	}
	if !f.StartDate.IsZero() && r.Date.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && r.Date.After(f.EndDate) {
		return false
	}
	return true
}

// Repository is the append-only attendance collection.
type Repository interface {
	Insert(ctx context.Context, r Record) error
	List(ctx context.Context, f Filter) ([]Record, error)
}

// Less orders records most recent first: date, then entry time, then id, all descending.
func Less(a, b Record) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if !a.EntryTime.Equal(b.EntryTime) {
		return a.EntryTime.After(b.EntryTime)
	}
	return a.ID > b.ID
}

// SortRecords sorts in place with Less.
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool { return Less(recs[i], recs[j]) })
}

// Page applies f's offset and limit to an already sorted slice.
func Page(recs []Record, f Filter) []Record {
	if f.Offset >= len(recs) {
		return []Record{}
	}
	recs = recs[f.Offset:]
	if f.Limit > 0 && f.Limit < len(recs) {
		recs = recs[:f.Limit]
	}
	return recs
}
