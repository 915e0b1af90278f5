// Package memory is an in-process store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/identity"
)

// Identities is a map-backed identity.Store.
type Identities struct {
	mu       sync.RWMutex
	students map[string]*identity.Student
	faculty  map[string]*identity.Faculty

	// Lookups counts FindStudent/FindFaculty calls so tests can assert the store was not touched.
	Lookups int
}

// NewIdentities creates an empty store.
func NewIdentities() *Identities {
	return &Identities{
		students: make(map[string]*identity.Student),
		faculty:  make(map[string]*identity.Faculty),
	}
}

func cloneStudent(s *identity.Student) *identity.Student {
	c := *s
	c.FaceEmbedding = append([]float32(nil), s.FaceEmbedding...)
	return &c
}

func cloneFaculty(f *identity.Faculty) *identity.Faculty {
	c := *f
	c.Subjects = append([]string{}, f.Subjects...)
	c.FaceEmbedding = append([]float32(nil), f.FaceEmbedding...)
	return &c
}

func keyMatch(keys identity.Keys, email, external string) bool {
	if keys.Email != "" && identity.NormalizeEmail(keys.Email) == email {
		return true
	}
	return keys.ExternalID != "" && keys.ExternalID == external
}

// FindStudent returns the student matching either key, or nil.
func (m *Identities) FindStudent(_ context.Context, keys identity.Keys) (*identity.Student, error) {
	m.mu.Lock()
	m.Lookups++
	defer m.mu.Unlock()
	for _, s := range m.students {
		if keyMatch(keys, s.Email, s.RollNo) {
			return cloneStudent(s), nil
		}
	}
	return nil, nil
}

// FindFaculty returns the faculty member matching either key, or nil.
func (m *Identities) FindFaculty(_ context.Context, keys identity.Keys) (*identity.Faculty, error) {
	m.mu.Lock()
	m.Lookups++
	defer m.mu.Unlock()
	for _, f := range m.faculty {
		if keyMatch(keys, f.Email, f.EmployeeID) {
			return cloneFaculty(f), nil
		}
	}
	return nil, nil
}

// CreateStudent stores s unless its email or roll number is taken.
func (m *Identities) CreateStudent(_ context.Context, s *identity.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.students {
		if e.ID == s.ID || e.Email == s.Email || e.RollNo == s.RollNo {
			return identity.ErrDuplicateKey
		}
	}
	m.students[s.ID] = cloneStudent(s)
	return nil
}

// CreateFaculty stores f unless its email or employee id is taken.
func (m *Identities) CreateFaculty(_ context.Context, f *identity.Faculty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.faculty {
		if e.ID == f.ID || e.Email == f.Email || e.EmployeeID == f.EmployeeID {
			return identity.ErrDuplicateKey
		}
	}
	m.faculty[f.ID] = cloneFaculty(f)
	return nil
}

// GetStudent returns a student by id, or nil.
func (m *Identities) GetStudent(_ context.Context, id string) (*identity.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.students[id]; ok {
		return cloneStudent(s), nil
	}
	return nil, nil
}

// GetFaculty returns a faculty member by id, or nil.
func (m *Identities) GetFaculty(_ context.Context, id string) (*identity.Faculty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.faculty[id]; ok {
		return cloneFaculty(f), nil
	}
	return nil, nil
}

// ListStudents returns matching students ordered by roll number.
func (m *Identities) ListStudents(_ context.Context, f identity.StudentFilter) ([]identity.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := []identity.Student{}
	for _, s := range m.students {
		if f.Division != "" && s.Division != f.Division {
			continue
		}
		if f.Batch != "" && s.Batch != f.Batch {
			continue
		}
		if f.Year != "" && s.Year != f.Year {
			continue
		}
		res = append(res, *cloneStudent(s))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RollNo < res[j].RollNo })
	return res, nil
}

// ListFaculty returns all faculty ordered by employee id.
func (m *Identities) ListFaculty(_ context.Context) ([]identity.Faculty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := []identity.Faculty{}
	for _, f := range m.faculty {
		res = append(res, *cloneFaculty(f))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].EmployeeID < res[j].EmployeeID })
	return res, nil
}

// UpdateStudent applies u and returns the updated student, or nil if id is unknown.
func (m *Identities) UpdateStudent(_ context.Context, id string, u identity.StudentUpdate, at time.Time) (*identity.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	u.Apply(s)
	s.UpdatedAt = at
	return cloneStudent(s), nil
}

// Attendance is a slice-backed attendance.Repository.
type Attendance struct {
	mu      sync.RWMutex
	records []attendance.Record

	// InsertErr, when set, is returned by Insert instead of storing the record.
	InsertErr error
}

// NewAttendance creates an empty repository.
func NewAttendance() *Attendance {
	return &Attendance{}
}

// Insert appends rec.
func (a *Attendance) Insert(ctx context.Context, rec attendance.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.InsertErr != nil {
		return a.InsertErr
	}
	a.records = append(a.records, rec)
	return nil
}

// List returns matching records, most recent first.
func (a *Attendance) List(_ context.Context, f attendance.Filter) ([]attendance.Record, error) {
	a.mu.RLock()
	res := []attendance.Record{}
	for _, r := range a.records {
		if f.Matches(r) {
			res = append(res, r)
		}
	}
	a.mu.RUnlock()

	attendance.SortRecords(res)
	return attendance.Page(res, f), nil
}

// Len returns the number of stored records.
func (a *Attendance) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}
