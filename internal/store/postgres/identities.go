package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/campusattend/attendance/internal/identity"
)

// IdentityRepository persists students and faculty.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a repo.
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const studentColumns = `id, name, email, password_hash, gender, dob, roll_no, division, batch, year,
	mobile_number, face_embedding, face_image, is_verified, created_at, updated_at`

const facultyColumns = `id, name, email, password_hash, gender, dob, employee_id, department, designation,
	mobile_number, subjects, face_embedding, face_image, is_verified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*identity.Student, error) {
	var (
		s   identity.Student
		dob sql.NullTime
		vec *pgvector.Vector
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.PasswordHash, &s.Gender, &dob, &s.RollNo,
		&s.Division, &s.Batch, &s.Year, &s.MobileNumber, &vec, &s.FaceImage, &s.IsVerified,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if dob.Valid {
		s.DOB = dob.Time
	}
	if vec != nil {
		s.FaceEmbedding = vec.Slice()
	}
	return &s, nil
}

func scanFaculty(row rowScanner) (*identity.Faculty, error) {
	var (
		f        identity.Faculty
		dob      sql.NullTime
		subjects []byte
		vec      *pgvector.Vector
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Email, &f.PasswordHash, &f.Gender, &dob, &f.EmployeeID,
		&f.Department, &f.Designation, &f.MobileNumber, &subjects, &vec, &f.FaceImage, &f.IsVerified,
		&f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if dob.Valid {
		f.DOB = dob.Time
	}
	if vec != nil {
		f.FaceEmbedding = vec.Slice()
	}
	f.Subjects = []string{}
	if len(subjects) > 0 {
		if err := json.Unmarshal(subjects, &f.Subjects); err != nil {
			return nil, fmt.Errorf("decode subjects: %w", err)
		}
	}
	return &f, nil
}

func embedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// keyClause builds "(email = $1 OR <col> = $2)" for the set keys.
func keyClause(keys identity.Keys, externalCol string) (string, []any) {
	var (
		parts []string
		args  []any
	)
	if keys.Email != "" {
		args = append(args, identity.NormalizeEmail(keys.Email))
		parts = append(parts, "email = $"+strconv.Itoa(len(args)))
	}
	if keys.ExternalID != "" {
		args = append(args, keys.ExternalID)
		parts = append(parts, externalCol+" = $"+strconv.Itoa(len(args)))
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// FindStudent returns the student matching either key, or nil.
func (r *IdentityRepository) FindStudent(ctx context.Context, keys identity.Keys) (*identity.Student, error) {
	if keys.Empty() {
		return nil, nil
	}
	where, args := keyClause(keys, "roll_no")
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE `+where+` LIMIT 1`, args...)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return s, nil
}

// FindFaculty returns the faculty member matching either key, or nil.
func (r *IdentityRepository) FindFaculty(ctx context.Context, keys identity.Keys) (*identity.Faculty, error) {
	if keys.Empty() {
		return nil, nil
	}
	where, args := keyClause(keys, "employee_id")
	row := r.db.QueryRowContext(ctx, `SELECT `+facultyColumns+` FROM faculty WHERE `+where+` LIMIT 1`, args...)
	f, err := scanFaculty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query faculty: %w", err)
	}
	return f, nil
}

// CreateStudent inserts a student; unique conflicts become identity.ErrDuplicateKey.
func (r *IdentityRepository) CreateStudent(ctx context.Context, s *identity.Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, s.ID, s.Name, s.Email, s.PasswordHash, s.Gender, nullTime(s.DOB), s.RollNo, s.Division,
		s.Batch, s.Year, s.MobileNumber, embedding(s.FaceEmbedding), s.FaceImage, s.IsVerified,
		s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return identity.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// CreateFaculty inserts a faculty member; unique conflicts become identity.ErrDuplicateKey.
func (r *IdentityRepository) CreateFaculty(ctx context.Context, f *identity.Faculty) error {
	subjects, err := json.Marshal(f.Subjects)
	if err != nil {
		return fmt.Errorf("encode subjects: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO faculty (`+facultyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, f.ID, f.Name, f.Email, f.PasswordHash, f.Gender, nullTime(f.DOB), f.EmployeeID, f.Department,
		f.Designation, f.MobileNumber, string(subjects), embedding(f.FaceEmbedding), f.FaceImage,
		f.IsVerified, f.CreatedAt, f.UpdatedAt)
	if isUniqueViolation(err) {
		return identity.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert faculty: %w", err)
	}
	return nil
}

// GetStudent returns a student by id, or nil.
func (r *IdentityRepository) GetStudent(ctx context.Context, id string) (*identity.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return s, nil
}

// GetFaculty returns a faculty member by id, or nil.
func (r *IdentityRepository) GetFaculty(ctx context.Context, id string) (*identity.Faculty, error) {
	f, err := scanFaculty(r.db.QueryRowContext(ctx, `SELECT `+facultyColumns+` FROM faculty WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query faculty: %w", err)
	}
	return f, nil
}

// ListStudents returns students ordered by roll number.
func (r *IdentityRepository) ListStudents(ctx context.Context, f identity.StudentFilter) ([]identity.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	var (
		clauses []string
		args    []any
	)
	for col, val := range map[string]string{"division": f.Division, "batch": f.Batch, "year": f.Year} {
		if val == "" {
			continue
		}
		args = append(args, val)
		clauses = append(clauses, col+" = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY roll_no"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	res := []identity.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

// ListFaculty returns all faculty ordered by employee id.
func (r *IdentityRepository) ListFaculty(ctx context.Context) ([]identity.Faculty, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+facultyColumns+` FROM faculty ORDER BY employee_id`)
	if err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}
	defer rows.Close()

	res := []identity.Faculty{}
	for rows.Next() {
		f, err := scanFaculty(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *f)
	}
	return res, rows.Err()
}

// UpdateStudent applies u in one statement and returns the new row, or nil if id is unknown.
func (r *IdentityRepository) UpdateStudent(ctx context.Context, id string, u identity.StudentUpdate, at time.Time) (*identity.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students SET
			name          = COALESCE($2, name),
			gender        = COALESCE($3, gender),
			division      = COALESCE($4, division),
			batch         = COALESCE($5, batch),
			year          = COALESCE($6, year),
			mobile_number = COALESCE($7, mobile_number),
			updated_at    = $8
		WHERE id = $1
		RETURNING `+studentColumns,
		id, trimmed(u.Name), u.Gender, u.Division, u.Batch, u.Year, u.MobileNumber, at)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	return s, nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}
