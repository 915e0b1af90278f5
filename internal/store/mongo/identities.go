package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campusattend/attendance/internal/identity"
)

type studentDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Email         string    `bson:"email"`
	PasswordHash  string    `bson:"password"`
	Gender        string    `bson:"gender,omitempty"`
	DOB           time.Time `bson:"dob,omitempty"`
	RollNo        string    `bson:"rollNo"`
	Division      string    `bson:"division,omitempty"`
	Batch         string    `bson:"batch,omitempty"`
	Year          string    `bson:"year,omitempty"`
	MobileNumber  string    `bson:"mobileNumber,omitempty"`
	FaceEmbedding []float32 `bson:"faceEmbedding,omitempty"`
	FaceImage     string    `bson:"faceImage,omitempty"`
	IsVerified    bool      `bson:"isVerified"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func (d studentDoc) student() *identity.Student {
	return &identity.Student{
		ID: d.ID, Name: d.Name, Email: d.Email, PasswordHash: d.PasswordHash, Gender: d.Gender,
		DOB: d.DOB, RollNo: d.RollNo, Division: d.Division, Batch: d.Batch, Year: d.Year,
		MobileNumber: d.MobileNumber, FaceEmbedding: d.FaceEmbedding, FaceImage: d.FaceImage,
		IsVerified: d.IsVerified, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func fromStudent(s *identity.Student) studentDoc {
	return studentDoc{
		ID: s.ID, Name: s.Name, Email: s.Email, PasswordHash: s.PasswordHash, Gender: s.Gender,
		DOB: s.DOB, RollNo: s.RollNo, Division: s.Division, Batch: s.Batch, Year: s.Year,
		MobileNumber: s.MobileNumber, FaceEmbedding: s.FaceEmbedding, FaceImage: s.FaceImage,
		IsVerified: s.IsVerified, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

type facultyDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Email         string    `bson:"email"`
	PasswordHash  string    `bson:"password"`
	Gender        string    `bson:"gender,omitempty"`
	DOB           time.Time `bson:"dob,omitempty"`
	EmployeeID    string    `bson:"employeeId"`
	Department    string    `bson:"department,omitempty"`
	Designation   string    `bson:"designation,omitempty"`
	MobileNumber  string    `bson:"mobileNumber,omitempty"`
	Subjects      []string  `bson:"subjects"`
	FaceEmbedding []float32 `bson:"faceEmbedding,omitempty"`
	FaceImage     string    `bson:"faceImage,omitempty"`
	IsVerified    bool      `bson:"isVerified"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func (d facultyDoc) faculty() *identity.Faculty {
	subjects := d.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return &identity.Faculty{
		ID: d.ID, Name: d.Name, Email: d.Email, PasswordHash: d.PasswordHash, Gender: d.Gender,
		DOB: d.DOB, EmployeeID: d.EmployeeID, Department: d.Department, Designation: d.Designation,
		MobileNumber: d.MobileNumber, Subjects: subjects, FaceEmbedding: d.FaceEmbedding,
		FaceImage: d.FaceImage, IsVerified: d.IsVerified, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func fromFaculty(f *identity.Faculty) facultyDoc {
	return facultyDoc{
		ID: f.ID, Name: f.Name, Email: f.Email, PasswordHash: f.PasswordHash, Gender: f.Gender,
		DOB: f.DOB, EmployeeID: f.EmployeeID, Department: f.Department, Designation: f.Designation,
		MobileNumber: f.MobileNumber, Subjects: f.Subjects, FaceEmbedding: f.FaceEmbedding,
		FaceImage: f.FaceImage, IsVerified: f.IsVerified, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt,
	}
}

// IdentityRepository persists students and faculty as documents.
type IdentityRepository struct {
	students *mongo.Collection
	faculty  *mongo.Collection
}

// NewIdentityRepository creates a repo over db.
func NewIdentityRepository(db *mongo.Database) *IdentityRepository {
	return &IdentityRepository{
		students: db.Collection(studentsCollection),
		faculty:  db.Collection(facultyCollection),
	}
}

func keyFilter(keys identity.Keys, externalField string) bson.M {
	var or bson.A
	if keys.Email != "" {
		or = append(or, bson.M{"email": identity.NormalizeEmail(keys.Email)})
	}
	if keys.ExternalID != "" {
		or = append(or, bson.M{externalField: keys.ExternalID})
	}
	return bson.M{"$or": or}
}

// FindStudent returns the student matching either key, or nil.
func (r *IdentityRepository) FindStudent(ctx context.Context, keys identity.Keys) (*identity.Student, error) {
	if keys.Empty() {
		return nil, nil
	}
	var doc studentDoc
	err := r.students.FindOne(ctx, keyFilter(keys, "rollNo")).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find student: %w", err)
	}
	return doc.student(), nil
}

// FindFaculty returns the faculty member matching either key, or nil.
func (r *IdentityRepository) FindFaculty(ctx context.Context, keys identity.Keys) (*identity.Faculty, error) {
	if keys.Empty() {
		return nil, nil
	}
	var doc facultyDoc
	err := r.faculty.FindOne(ctx, keyFilter(keys, "employeeId")).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find faculty: %w", err)
	}
	return doc.faculty(), nil
}

// CreateStudent inserts a student; unique index conflicts become identity.ErrDuplicateKey.
func (r *IdentityRepository) CreateStudent(ctx context.Context, s *identity.Student) error {
	_, err := r.students.InsertOne(ctx, fromStudent(s))
	if mongo.IsDuplicateKeyError(err) {
		return identity.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// CreateFaculty inserts a faculty member; unique index conflicts become identity.ErrDuplicateKey.
func (r *IdentityRepository) CreateFaculty(ctx context.Context, f *identity.Faculty) error {
	_, err := r.faculty.InsertOne(ctx, fromFaculty(f))
	if mongo.IsDuplicateKeyError(err) {
		return identity.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert faculty: %w", err)
	}
	return nil
}

// GetStudent returns a student by id, or nil.
func (r *IdentityRepository) GetStudent(ctx context.Context, id string) (*identity.Student, error) {
	var doc studentDoc
	err := r.students.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return doc.student(), nil
}

// GetFaculty returns a faculty member by id, or nil.
func (r *IdentityRepository) GetFaculty(ctx context.Context, id string) (*identity.Faculty, error) {
	var doc facultyDoc
	err := r.faculty.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get faculty: %w", err)
	}
	return doc.faculty(), nil
}

// ListStudents returns students ordered by roll number.
func (r *IdentityRepository) ListStudents(ctx context.Context, f identity.StudentFilter) ([]identity.Student, error) {
	filter := bson.M{}
	if f.Division != "" {
		filter["division"] = f.Division
	}
	if f.Batch != "" {
		filter["batch"] = f.Batch
	}
	if f.Year != "" {
		filter["year"] = f.Year
	}
	cur, err := r.students.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "rollNo", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	var docs []studentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode students: %w", err)
	}
	res := make([]identity.Student, 0, len(docs))
	for _, d := range docs {
		res = append(res, *d.student())
	}
	return res, nil
}

// ListFaculty returns all faculty ordered by employee id.
func (r *IdentityRepository) ListFaculty(ctx context.Context) ([]identity.Faculty, error) {
	cur, err := r.faculty.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "employeeId", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}
	var docs []facultyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode faculty: %w", err)
	}
	res := make([]identity.Faculty, 0, len(docs))
	for _, d := range docs {
		res = append(res, *d.faculty())
	}
	return res, nil
}

// UpdateStudent sets the changed fields and returns the updated document, or nil if id is unknown.
func (r *IdentityRepository) UpdateStudent(ctx context.Context, id string, u identity.StudentUpdate, at time.Time) (*identity.Student, error) {
	set := bson.M{"updatedAt": at}
	if u.Name != nil {
		set["name"] = strings.TrimSpace(*u.Name)
	}
	for field, val := range map[string]*string{
		"gender":       u.Gender,
		"division":     u.Division,
		"batch":        u.Batch,
		"year":         u.Year,
		"mobileNumber": u.MobileNumber,
	} {
		if val != nil {
			set[field] = *val
		}
	}

	var doc studentDoc
	err := r.students.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	return doc.student(), nil
}
