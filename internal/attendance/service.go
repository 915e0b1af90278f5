package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campusattend/attendance/internal/faceclient"
	"github.com/campusattend/attendance/internal/metrics"
)

// Recognizer is the face-match gateway.
type Recognizer interface {
	Recognize(ctx context.Context, image string, s faceclient.Session) ([]faceclient.Candidate, error)
}

// Notifier is told about every record written. Its failures never fail the request.
type Notifier interface {
	AttendanceRecorded(ctx context.Context, facultyID string, res Result) error
}

// Capture is one webcam still submitted by a faculty member.
type Capture struct {
	Image    string
	Subject  string
	Class    string
	Division string
}

// Service wires the gateway, the recorder and the query side together.
type Service struct {
	recognizer Recognizer
	recorder   *Recorder
	records    Repository
	notifier   Notifier
	defaults   SessionDefaults
	logger     *slog.Logger
}

// NewService creates a service. notifier may be nil.
func NewService(recognizer Recognizer, recorder *Recorder, records Repository, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		recognizer: recognizer,
		recorder:   recorder,
		records:    records,
		notifier:   notifier,
		defaults:   recorder.defaults,
		logger:     logger,
	}
}

// Defaults returns the session defaults applied to captures.
func (s *Service) Defaults() SessionDefaults {
	return s.defaults
}

// RecognizeAndRecord sends the capture to the face service and records attendance for
// the best match. Gateway errors are returned unchanged, and the identity store is
// only consulted once the gateway has answered.
func (s *Service) RecognizeAndRecord(ctx context.Context, c Capture, actingFacultyID string) (res *Result, err error) {
	defer func() { metrics.Recognition(outcome(err)) }()

	if c.Image == "" {
		return nil, faceclient.ErrImageRequired
	}
	if actingFacultyID == "" {
		return nil, ErrActorRequired
	}
	session := s.defaults.Apply(Session{
		Subject:    c.Subject,
		Class:      c.Class,
		Division:   c.Division,
		CapturedAt: time.Now().UTC(),
	})

	cands, err := s.recognizer.Recognize(ctx, c.Image, faceclient.Session{
		Subject:  session.Subject,
		Class:    session.Class,
		Division: session.Division,
	})
	if err != nil {
		s.logger.Warn("face recognition failed", "faculty_id", actingFacultyID, "error", err)
		return nil, err
	}

	res, err = s.recorder.RecordAttendance(ctx, cands, session, actingFacultyID)
	if err != nil {
		s.logger.Warn("attendance not recorded", "faculty_id", actingFacultyID, "candidates", len(cands), "error", err)
		return nil, err
	}

	metrics.RecordCreated(res.Record.Subject)
	s.logger.Info("attendance recorded",
		"record_id", res.Record.ID,
		"roll_no", res.Record.StudentRollNo,
		"subject", res.Record.Subject,
		"faculty_id", actingFacultyID,
		"confidence", res.Candidate.Confidence,
		"captured_at", session.CapturedAt,
	)

	if s.notifier != nil {
		if nerr := s.notifier.AttendanceRecorded(ctx, actingFacultyID, *res); nerr != nil {
			s.logger.Warn("notification publish failed", "record_id", res.Record.ID, "error", nerr)
		}
	}
	return res, nil
}

// Query returns the records matching f, most recent first.
func (s *Service) Query(ctx context.Context, f Filter) ([]Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	recs, err := s.records.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	if recs == nil {
		recs = []Record{}
	}
	SortRecords(recs)
	return recs, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeRecorded
	case errors.Is(err, ErrNoMatch):
		return metrics.OutcomeNoMatch
	case errors.Is(err, ErrUnknownIdentity):
		return metrics.OutcomeUnknownIdentity
	case errors.Is(err, faceclient.ErrRecognitionFailed):
		return metrics.OutcomeRecognitionFailed
	case errors.Is(err, faceclient.ErrServiceUnavailable):
		return metrics.OutcomeServiceUnavailable
	default:
		return metrics.OutcomeError
	}
}
