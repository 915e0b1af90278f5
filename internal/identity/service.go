package identity

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusattend/attendance/internal/faceclient"
	"github.com/campusattend/attendance/internal/metrics"
)

// MobilePattern matches a valid mobile number: exactly ten digits.
var MobilePattern = regexp.MustCompile(`^\d{10}$`)

// Enroller stores a reference face with the face-match service.
type Enroller interface {
	Register(ctx context.Context, e faceclient.Enrollment) ([]float32, error)
}

// ImageUploader moves a submitted face image to long-term storage and returns its URL.
type ImageUploader interface {
	UploadFace(ctx context.Context, image, publicID string) (string, error)
}

// StudentRegistration is the input for RegisterStudent.
type StudentRegistration struct {
	Name         string
	Email        string
	Password     string
	Gender       string
	DOB          string
	RollNo       string
	Division     string
	Batch        string
	Year         string
	MobileNumber string
	FaceImage    string
}

// FacultyRegistration is the input for RegisterFaculty.
type FacultyRegistration struct {
	Name         string
	Email        string
	Password     string
	Gender       string
	DOB          string
	EmployeeID   string
	Department   string
	Designation  string
	MobileNumber string
	Subjects     []string
	FaceImage    string
}

// Account is an authenticated student or faculty member.
type Account struct {
	Role    string
	Student *Student
	Faculty *Faculty
}

// ID returns the identity id of the account holder.
func (a Account) ID() string {
	if a.Student != nil {
		return a.Student.ID
	}
	if a.Faculty != nil {
		return a.Faculty.ID
	}
	return ""
}

// Email returns the account holder's email.
func (a Account) Email() string {
	if a.Student != nil {
		return a.Student.Email
	}
	if a.Faculty != nil {
		return a.Faculty.Email
	}
	return ""
}

// Service implements registration, login and profile management on top of a Store.
type Service struct {
	store    Store
	enroller Enroller
	uploader ImageUploader
	logger   *slog.Logger

	hashCost int
	now      func() time.Time
	newID    func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithUploader stores face images through u instead of keeping the submitted data.
func WithUploader(u ImageUploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an identity service.
func NewService(store Store, enroller Enroller, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		enroller: enroller,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterStudent enrolls the face first and only then writes the student record.
func (s *Service) RegisterStudent(ctx context.Context, r StudentRegistration) (st *Student, err error) {
	defer func() { metrics.Registration(RoleStudent, err) }()

	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.RollNo = strings.TrimSpace(r.RollNo)

	var missing []string
	if r.Name == "" {
		missing = append(missing, "name")
	}
	if r.Email == "" {
		missing = append(missing, "email")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if r.RollNo == "" {
		missing = append(missing, "rollNo")
	}
	if r.FaceImage == "" {
		missing = append(missing, "faceImage")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	dob, err := validateCommon(r.Password, r.Gender, r.MobileNumber, r.DOB)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUnique(ctx, r.Email, r.RollNo, RoleStudent); err != nil {
		return nil, err
	}

	embedding, err := s.enroller.Register(ctx, faceclient.Enrollment{
		Image:    r.FaceImage,
		PersonID: r.RollNo,
		Name:     r.Name,
		UserType: RoleStudent,
	})
	if err != nil {
		return nil, err
	}

	image, err := s.storeImage(ctx, r.FaceImage, "student-"+r.RollNo)
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(r.Password, s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	st = &Student{
		ID:            s.newID(),
		Name:          r.Name,
		Email:         r.Email,
		PasswordHash:  hash,
		Gender:        r.Gender,
		DOB:           dob,
		RollNo:        r.RollNo,
		Division:      r.Division,
		Batch:         r.Batch,
		Year:          r.Year,
		MobileNumber:  r.MobileNumber,
		FaceEmbedding: embedding,
		FaceImage:     image,
		IsVerified:    true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateStudent(ctx, st); err != nil {
		return nil, err
	}
	s.logger.Info("student registered", "id", st.ID, "roll_no", st.RollNo)
	return st, nil
}

// RegisterFaculty enrolls the face first and only then writes the faculty record.
func (s *Service) RegisterFaculty(ctx context.Context, r FacultyRegistration) (f *Faculty, err error) {
	defer func() { metrics.Registration(RoleFaculty, err) }()

	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.EmployeeID = strings.TrimSpace(r.EmployeeID)

	var missing []string
	if r.Name == "" {
		missing = append(missing, "name")
	}
	if r.Email == "" {
		missing = append(missing, "email")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if r.EmployeeID == "" {
		missing = append(missing, "employeeId")
	}
	if r.FaceImage == "" {
		missing = append(missing, "faceImage")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	dob, err := validateCommon(r.Password, r.Gender, r.MobileNumber, r.DOB)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUnique(ctx, r.Email, r.EmployeeID, RoleFaculty); err != nil {
		return nil, err
	}

	embedding, err := s.enroller.Register(ctx, faceclient.Enrollment{
		Image:    r.FaceImage,
		PersonID: r.EmployeeID,
		Name:     r.Name,
		UserType: RoleFaculty,
	})
	if err != nil {
		return nil, err
	}

	image, err := s.storeImage(ctx, r.FaceImage, "faculty-"+r.EmployeeID)
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(r.Password, s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	subjects := r.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	now := s.now()
	f = &Faculty{
		ID:            s.newID(),
		Name:          r.Name,
		Email:         r.Email,
		PasswordHash:  hash,
		Gender:        r.Gender,
		DOB:           dob,
		EmployeeID:    r.EmployeeID,
		Department:    r.Department,
		Designation:   r.Designation,
		MobileNumber:  r.MobileNumber,
		Subjects:      subjects,
		FaceEmbedding: embedding,
		FaceImage:     image,
		IsVerified:    true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateFaculty(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info("faculty registered", "id", f.ID, "employee_id", f.EmployeeID)
	return f, nil
}

// Authenticate checks email and password, trying students before faculty.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	st, err := s.store.FindStudent(ctx, Keys{Email: email})
	if err != nil {
		return nil, fmt.Errorf("find student: %w", err)
	}
	if st != nil {
		if !CheckPassword(st.PasswordHash, password) {
			return nil, ErrInvalidCredentials
		}
		return &Account{Role: RoleStudent, Student: st}, nil
	}

	f, err := s.store.FindFaculty(ctx, Keys{Email: email})
	if err != nil {
		return nil, fmt.Errorf("find faculty: %w", err)
	}
	if f == nil || !CheckPassword(f.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &Account{Role: RoleFaculty, Faculty: f}, nil
}

// Lookup loads the account behind a token subject.
func (s *Service) Lookup(ctx context.Context, role, id string) (*Account, error) {
	switch role {
	case RoleStudent:
		st, err := s.store.GetStudent(ctx, id)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, ErrNotFound
		}
		return &Account{Role: role, Student: st}, nil
	case RoleFaculty:
		f, err := s.store.GetFaculty(ctx, id)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, ErrNotFound
		}
		return &Account{Role: role, Faculty: f}, nil
	default:
		return nil, ErrNotFound
	}
}

// Student returns one student or ErrNotFound.
func (s *Service) Student(ctx context.Context, id string) (*Student, error) {
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNotFound
	}
	return st, nil
}

// Students lists students matching f.
func (s *Service) Students(ctx context.Context, f StudentFilter) ([]Student, error) {
	return s.store.ListStudents(ctx, f)
}

// FacultyMembers lists all faculty.
func (s *Service) FacultyMembers(ctx context.Context) ([]Faculty, error) {
	return s.store.ListFaculty(ctx)
}

// UpdateStudent changes profile fields. Attendance already recorded keeps the
// name and batch it was written with.
func (s *Service) UpdateStudent(ctx context.Context, id string, u StudentUpdate) (*Student, error) {
	if u.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if u.Gender != nil {
		if err := validateGender(*u.Gender); err != nil {
			return nil, err
		}
	}
	if u.MobileNumber != nil && *u.MobileNumber != "" && !MobilePattern.MatchString(*u.MobileNumber) {
		return nil, fmt.Errorf("%w: mobile number must be 10 digits", ErrValidation)
	}

	st, err := s.store.UpdateStudent(ctx, id, u, s.now())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNotFound
	}
	return st, nil
}

// ensureUnique rejects a registration whose email is taken by anyone, or whose
// external id is taken within the same role.
func (s *Service) ensureUnique(ctx context.Context, email, externalID, role string) error {
	switch role {
	case RoleStudent:
		st, err := s.store.FindStudent(ctx, Keys{Email: email, ExternalID: externalID})
		if err != nil {
			return fmt.Errorf("find student: %w", err)
		}
		if st != nil {
			return ErrDuplicateKey
		}
		f, err := s.store.FindFaculty(ctx, Keys{Email: email})
		if err != nil {
			return fmt.Errorf("find faculty: %w", err)
		}
		if f != nil {
			return ErrDuplicateKey
		}
	case RoleFaculty:
		f, err := s.store.FindFaculty(ctx, Keys{Email: email, ExternalID: externalID})
		if err != nil {
			return fmt.Errorf("find faculty: %w", err)
		}
		if f != nil {
			return ErrDuplicateKey
		}
		st, err := s.store.FindStudent(ctx, Keys{Email: email})
		if err != nil {
			return fmt.Errorf("find student: %w", err)
		}
		if st != nil {
			return ErrDuplicateKey
		}
	}
	return nil
}

func (s *Service) storeImage(ctx context.Context, image, publicID string) (string, error) {
	if s.uploader == nil {
		return image, nil
	}
	url, err := s.uploader.UploadFace(ctx, image, publicID)
	if err != nil {
		return "", fmt.Errorf("upload face image: %w", err)
	}
	return url, nil
}

func validateCommon(password, gender, mobile, dob string) (time.Time, error) {
	if len(password) < minPasswordLen {
		return time.Time{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	if err := validateGender(gender); err != nil {
		return time.Time{}, err
	}
	if mobile != "" && !MobilePattern.MatchString(mobile) {
		return time.Time{}, fmt.Errorf("%w: mobile number must be 10 digits", ErrValidation)
	}
	if dob == "" {
		return time.Time{}, nil
	}
	t, err := ParseDate(dob)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: dob: %v", ErrValidation, err)
	}
	return t, nil
}

func validateGender(g string) error {
	switch g {
	case "", "Male", "Female", "Other":
		return nil
	}
	return fmt.Errorf("%w: gender must be Male, Female or Other", ErrValidation)
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", v)
	}
	return t, nil
}
