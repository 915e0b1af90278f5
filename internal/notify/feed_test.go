package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/faceclient"
)

func TestInMemory_NewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	f := NewInMemory(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := f.Publish(ctx, "f1", Notification{ID: id}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	got, _ := f.List(ctx, "f1", 0)
	if len(got) != 3 || got[0].ID != "d" || got[2].ID != "b" {
		t.Errorf("List() = %+v", got)
	}
	two, _ := f.List(ctx, "f1", 2)
	if len(two) != 2 {
		t.Errorf("List(2) returned %d", len(two))
	}
	other, _ := f.List(ctx, "f2", 0)
	if len(other) != 0 {
		t.Errorf("feeds leak between faculty: %+v", other)
	}

	_ = f.Clear(ctx, "f1")
	if got, _ := f.List(ctx, "f1", 0); len(got) != 0 {
		t.Errorf("List() after Clear = %+v", got)
	}
}

func TestInMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewInMemory(0).Publish(ctx, "f1", Notification{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}

func TestAttendanceNotifier(t *testing.T) {
	feed := NewInMemory(10)
	at := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	res := attendance.Result{
		Record: attendance.Record{
			ID: "r1", StudentID: "s1", StudentName: "Asha", StudentRollNo: "R101",
			Subject: "Physics", EntryTime: at,
		},
		Candidate: faceclient.Candidate{PersonID: "R101", Confidence: 0.93},
	}

	if err := (AttendanceNotifier{Feed: feed}).AttendanceRecorded(context.Background(), "f1", res); err != nil {
		t.Fatalf("AttendanceRecorded() error = %v", err)
	}
	got, _ := feed.List(context.Background(), "f1", 0)
	if len(got) != 1 {
		t.Fatalf("feed has %d entries, want 1", len(got))
	}
	n := got[0]
	if n.Type != TypeAttendance || n.RecordID != "r1" || n.Confidence != 0.93 || !n.CreatedAt.Equal(at) {
		t.Errorf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "Asha") || !strings.Contains(n.Message, "Physics") {
		t.Errorf("message = %q", n.Message)
	}
}
