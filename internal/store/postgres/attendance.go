package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/campusattend/attendance/internal/attendance"
)

// AttendanceRepository persists attendance records in Postgres. Rows are only ever inserted.
type AttendanceRepository struct {
	db *sql.DB
}

// NewAttendanceRepository creates a repo.
func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const recordColumns = `id, student_id, student_roll_no, student_name, subject, faculty_id, date, entry_time,
	class, division, batch, year, status`

// Insert writes a new record in a single statement.
func (r *AttendanceRepository) Insert(ctx context.Context, rec attendance.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, rec.ID, rec.StudentID, rec.StudentRollNo, rec.StudentName, rec.Subject, rec.FacultyID,
		rec.Date, rec.EntryTime, rec.Class, rec.Division, rec.Batch, rec.Year, string(rec.Status))
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// List returns records matching f, most recent first.
func (r *AttendanceRepository) List(ctx context.Context, f attendance.Filter) ([]attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	var (
		clauses []string
		args    []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		clauses = append(clauses, cond+" $"+strconv.Itoa(len(args)))
	}
	if f.StudentID != "" {
		add("student_id =", f.StudentID)
	}
	if f.Subject != "" {
		add("subject =", f.Subject)
	}
	if f.Class != "" {
		add("class =", f.Class)
	}
	if f.Division != "" {
		add("division =", f.Division)
	}
	if f.FacultyID != "" {
		add("faculty_id =", f.FacultyID)
	}
	if !f.StartDate.IsZero() {
		add("date >=", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		add("date <=", f.EndDate)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date DESC, entry_time DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	res := []attendance.Record{}
	for rows.Next() {
		var (
			rec    attendance.Record
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.StudentRollNo, &rec.StudentName, &rec.Subject,
			&rec.FacultyID, &rec.Date, &rec.EntryTime, &rec.Class, &rec.Division, &rec.Batch, &rec.Year,
			&status); err != nil {
			return nil, err
		}
		rec.Status = attendance.Status(status)
		rec.Date = rec.Date.UTC()
		rec.EntryTime = rec.EntryTime.UTC()
		res = append(res, rec)
	}
	return res, rows.Err()
}
