package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campusattend/attendance/internal/attendance"
)

type recordDoc struct {
	ID            string    `bson:"_id"`
	StudentID     string    `bson:"studentId"`
	StudentRollNo string    `bson:"studentRollNo"`
	StudentName   string    `bson:"studentName"`
	Subject       string    `bson:"subject"`
	FacultyID     string    `bson:"facultyId"`
	Date          time.Time `bson:"date"`
	EntryTime     time.Time `bson:"entryTime"`
	Class         string    `bson:"class"`
	Division      string    `bson:"division"`
	Batch         string    `bson:"batch"`
	Year          string    `bson:"year"`
	Status        string    `bson:"status"`
}

// AttendanceRepository stores records in the attendances collection. Documents are never updated.
type AttendanceRepository struct {
	coll *mongo.Collection
}

// NewAttendanceRepository creates a repo over db.
func NewAttendanceRepository(db *mongo.Database) *AttendanceRepository {
	return &AttendanceRepository{coll: db.Collection(attendanceCollection)}
}

// Insert writes one document.
func (r *AttendanceRepository) Insert(ctx context.Context, rec attendance.Record) error {
	_, err := r.coll.InsertOne(ctx, recordDoc{
		ID: rec.ID, StudentID: rec.StudentID, StudentRollNo: rec.StudentRollNo,
		StudentName: rec.StudentName, Subject: rec.Subject, FacultyID: rec.FacultyID,
		Date: rec.Date, EntryTime: rec.EntryTime, Class: rec.Class, Division: rec.Division,
		Batch: rec.Batch, Year: rec.Year, Status: string(rec.Status),
	})
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

func recordFilter(f attendance.Filter) bson.M {
	filter := bson.M{}
	for field, val := range map[string]string{
		"studentId": f.StudentID,
		"subject":   f.Subject,
		"class":     f.Class,
		"division":  f.Division,
		"facultyId": f.FacultyID,
	} {
		if val != "" {
			filter[field] = val
		}
	}
	date := bson.M{}
	if !f.StartDate.IsZero() {
		date["$gte"] = f.StartDate
	}
	if !f.EndDate.IsZero() {
		date["$lte"] = f.EndDate
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	return filter
}

// List returns records matching f, most recent first.
func (r *AttendanceRepository) List(ctx context.Context, f attendance.Filter) ([]attendance.Record, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: -1},
		{Key: "entryTime", Value: -1},
		{Key: "_id", Value: -1},
	})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cur, err := r.coll.Find(ctx, recordFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode attendance: %w", err)
	}

	res := make([]attendance.Record, 0, len(docs))
	for _, d := range docs {
		res = append(res, attendance.Record{
			ID: d.ID, StudentID: d.StudentID, StudentRollNo: d.StudentRollNo,
			StudentName: d.StudentName, Subject: d.Subject, FacultyID: d.FacultyID,
			Date: d.Date.UTC(), EntryTime: d.EntryTime.UTC(), Class: d.Class,
			Division: d.Division, Batch: d.Batch, Year: d.Year, Status: attendance.Status(d.Status),
		})
	}
	return res, nil
}
