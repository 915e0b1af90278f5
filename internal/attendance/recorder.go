package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campusattend/attendance/internal/faceclient"
	"github.com/campusattend/attendance/internal/identity"
)

// IdentityResolver looks students up by enrollment key. It returns nil, nil when
// nothing matches.
type IdentityResolver interface {
	FindStudent(ctx context.Context, keys identity.Keys) (*identity.Student, error)
}

// StudentSummary is the display form of the matched student.
type StudentSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	RollNo string `json:"rollNo"`
	Email  string `json:"email"`
}

// Result is what a successful recording returns.
type Result struct {
	Record    Record               `json:"attendance"`
	Student   StudentSummary       `json:"student"`
	Candidate faceclient.Candidate `json:"-"`
}

// Recorder turns a recognition result into a persisted attendance record.
type Recorder struct {
	identities IdentityResolver
	records    Repository
	defaults   SessionDefaults

	now   func() time.Time
	newID func() string
}

// NewRecorder creates a recorder reading identities from ids and writing to recs.
func NewRecorder(ids IdentityResolver, recs Repository, defaults SessionDefaults) *Recorder {
	return &Recorder{
		identities: ids,
		records:    recs,
		defaults:   defaults,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// TopCandidate returns the candidate with the highest confidence; the earliest wins ties.
func TopCandidate(cands []faceclient.Candidate) (faceclient.Candidate, bool) {
	if len(cands) == 0 {
		return faceclient.Candidate{}, false
	}
	top := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > top.Confidence {
			top = c
		}
	}
	return top, true
}

// RecordAttendance resolves the best candidate to a student and appends one record.
// Nothing is written unless the student exists. Repeated calls for the same
// student each produce a new record.
func (r *Recorder) RecordAttendance(ctx context.Context, cands []faceclient.Candidate, s Session, actingFacultyID string) (*Result, error) {
	if actingFacultyID == "" {
		return nil, ErrActorRequired
	}
	top, ok := TopCandidate(cands)
	if !ok {
		return nil, ErrNoMatch
	}

	st, err := r.identities.FindStudent(ctx, identity.Keys{ExternalID: top.PersonID})
	if err != nil {
		return nil, fmt.Errorf("resolve identity %q: %w", top.PersonID, err)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: person id %q", ErrUnknownIdentity, top.PersonID)
	}

	s = r.defaults.Apply(s)
	now := r.now()
	rec := Record{
		ID:            r.newID(),
		StudentID:     st.ID,
		StudentRollNo: st.RollNo,
		StudentName:   st.Name,
		Subject:       s.Subject,
		FacultyID:     actingFacultyID,
		Date:          now,
		EntryTime:     now,
		Class:         s.Class,
		Division:      s.Division,
		Batch:         st.Batch,
		Year:          st.Year,
		Status:        StatusPresent,
	}

	// An aborted request must not leave a record behind.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.records.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return &Result{
		Record: rec,
		Student: StudentSummary{
			ID:     st.ID,
			Name:   st.Name,
			RollNo: st.RollNo,
			Email:  st.Email,
		},
		Candidate: top,
	}, nil
}
