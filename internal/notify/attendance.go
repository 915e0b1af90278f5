package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/campusattend/attendance/internal/attendance"
)

// TypeAttendance marks entries written for a recorded attendance.
const TypeAttendance = "attendance"

// AttendanceNotifier publishes a feed entry for every recorded attendance.
type AttendanceNotifier struct {
	Feed Feed
}

// AttendanceRecorded implements attendance.Notifier.
func (a AttendanceNotifier) AttendanceRecorded(ctx context.Context, facultyID string, res attendance.Result) error {
	rec := res.Record
	return a.Feed.Publish(ctx, facultyID, Notification{
		ID:          uuid.NewString(),
		Type:        TypeAttendance,
		Message:     fmt.Sprintf("%s (%s) marked present for %s", rec.StudentName, rec.StudentRollNo, rec.Subject),
		RecordID:    rec.ID,
		StudentID:   rec.StudentID,
		StudentName: rec.StudentName,
		RollNo:      rec.StudentRollNo,
		Subject:     rec.Subject,
		Confidence:  res.Candidate.Confidence,
		CreatedAt:   rec.EntryTime,
	})
}
