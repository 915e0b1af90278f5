package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusattend/attendance/internal/api"
	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/faceclient"
	"github.com/campusattend/attendance/internal/httpmiddleware"
	"github.com/campusattend/attendance/internal/identity"
	"github.com/campusattend/attendance/internal/logging"
	"github.com/campusattend/attendance/internal/notify"
	"github.com/campusattend/attendance/internal/store/memory"
)

type fakeRecognizer struct {
	cands []faceclient.Candidate
	err   error
}

func (f *fakeRecognizer) Recognize(context.Context, string, faceclient.Session) ([]faceclient.Candidate, error) {
	return f.cands, f.err
}

type fakeEnroller struct{}

func (fakeEnroller) Register(context.Context, faceclient.Enrollment) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeFace struct {
	doc map[string]any
	err error
}

func (f *fakeFace) Health(context.Context) (map[string]any, error) { return f.doc, f.err }

type testEnv struct {
	router   *gin.Engine
	recs     *memory.Attendance
	rec      *fakeRecognizer
	face     *fakeFace
	storeErr error
}

type option func(*api.Deps)

func newEnv(t *testing.T, opts ...option) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ids := memory.NewIdentities()
	recs := memory.NewAttendance()
	env := &testEnv{recs: recs, rec: &fakeRecognizer{}, face: &fakeFace{doc: map[string]any{"status": "healthy"}}}

	idSvc := identity.NewService(ids, fakeEnroller{}, logging.Discard(), identity.WithHashCost(bcrypt.MinCost))
	feed := notify.NewInMemory(10)
	recorder := attendance.NewRecorder(ids, recs, attendance.DefaultSessionDefaults())
	att := attendance.NewService(env.rec, recorder, recs, notify.AttendanceNotifier{Feed: feed}, logging.Discard())

	deps := api.Deps{
		Identities: idSvc,
		Attendance: att,
		Face:       env.face,
		Tokens:     auth.NewTokens("campus-attendance", "test-key", time.Hour, 24*time.Hour),
		Sessions:   auth.NewMemorySessions(),
		Feed:       feed,
		Checks: map[string]api.Check{
			"store": func(context.Context) error { return env.storeErr },
		},
		Logger:         logging.Discard(),
		Env:            "test",
		FaceServiceURL: "http://face.test",
	}
	for _, o := range opts {
		o(&deps)
	}
	env.router = api.NewRouter(deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, out
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %#v", body["data"])
	}
	return d
}

func listOf(t *testing.T, body map[string]any) []any {
	t.Helper()
	l, ok := body["data"].([]any)
	if !ok {
		t.Fatalf("data = %#v, want list", body["data"])
	}
	return l
}

func studentBody(rollNo, email string) map[string]any {
	return map[string]any{
		"name":      "Student " + rollNo,
		"email":     email,
		"password":  "secret1",
		"rollNo":    rollNo,
		"division":  "A",
		"batch":     "2024",
		"year":      "FY",
		"faceImage": "data:image/jpeg;base64,AAA",
	}
}

// registerStudent returns the new student's id and access token.
func (e *testEnv) registerStudent(t *testing.T, rollNo, email string) (string, string) {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/auth/register/student", "", studentBody(rollNo, email))
	if code != http.StatusCreated {
		t.Fatalf("register student %s = %d %v", rollNo, code, body)
	}
	d := dataOf(t, body)
	return d["user"].(map[string]any)["id"].(string), d["token"].(string)
}

func (e *testEnv) registerFaculty(t *testing.T) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/auth/register/faculty", "", map[string]any{
		"name":       "Dr. Rao",
		"email":      "rao@example.edu",
		"password":   "secret1",
		"employeeId": "E7",
		"subjects":   []string{"Physics"},
		"faceImage":  "data:image/jpeg;base64,BBB",
	})
	if code != http.StatusCreated {
		t.Fatalf("register faculty = %d %v", code, body)
	}
	return dataOf(t, body)["token"].(string)
}

func TestRegisterLoginVerify(t *testing.T) {
	e := newEnv(t)
	e.registerStudent(t, "R101", "asha@example.edu")

	code, body := e.do(t, http.MethodPost, "/api/auth/register/student", "", studentBody("R101", "other@example.edu"))
	if code != http.StatusBadRequest || body["success"] != false {
		t.Errorf("duplicate roll number = %d %v", code, body)
	}

	code, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "asha@example.edu", "password": "wrong-pass"})
	if code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d, want 401", code)
	}

	code, body = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ASHA@example.edu", "password": "secret1"})
	if code != http.StatusOK {
		t.Fatalf("login = %d %v", code, body)
	}
	d := dataOf(t, body)
	user := d["user"].(map[string]any)
	if user["role"] != identity.RoleStudent || user["rollNo"] != "R101" {
		t.Errorf("user = %v", user)
	}

	code, body = e.do(t, http.MethodGet, "/api/auth/verify", d["token"].(string), nil)
	if code != http.StatusOK || dataOf(t, body)["user"].(map[string]any)["email"] != "asha@example.edu" {
		t.Errorf("verify = %d %v", code, body)
	}

	if code, _ := e.do(t, http.MethodGet, "/api/auth/verify", "", nil); code != http.StatusUnauthorized {
		t.Errorf("verify without token = %d, want 401", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/auth/verify", "garbage", nil); code != http.StatusUnauthorized {
		t.Errorf("verify with bad token = %d, want 401", code)
	}
}

func TestRegister_BindingErrors(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name  string
		patch map[string]any
		want  string
	}{
		{"missing email", map[string]any{"email": ""}, "email is required"},
		{"bad email", map[string]any{"email": "nope"}, "email must be a valid email"},
		{"short password", map[string]any{"password": "abc"}, "password must be at least 6 characters"},
		{"bad mobile", map[string]any{"mobileNumber": "12ab"}, "mobileNumber must be 10 digits"},
		{"bad gender", map[string]any{"gender": "Unknown"}, "gender must be one of"},
		{"missing face", map[string]any{"faceImage": ""}, "faceImage is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := studentBody("R200", "x@example.edu")
			for k, v := range tt.patch {
				b[k] = v
			}
			code, body := e.do(t, http.MethodPost, "/api/auth/register/student", "", b)
			if code != http.StatusBadRequest {
				t.Fatalf("code = %d, want 400", code)
			}
			if msg, _ := body["error"].(string); !strings.Contains(msg, tt.want) {
				t.Errorf("error = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
}

func TestRefreshRotationAndLogout(t *testing.T) {
	e := newEnv(t)
	e.registerStudent(t, "R101", "asha@example.edu")
	_, body := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "asha@example.edu", "password": "secret1"})
	first := dataOf(t, body)["refreshToken"].(string)

	code, body := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": first})
	if code != http.StatusOK {
		t.Fatalf("refresh = %d %v", code, body)
	}
	second := dataOf(t, body)["refreshToken"].(string)
	if second == first {
		t.Fatal("refresh returned the same token")
	}

	if code, _ := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": first}); code != http.StatusUnauthorized {
		t.Errorf("reused refresh token = %d, want 401", code)
	}

	access := dataOf(t, body)["token"].(string)
	if code, _ := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": access}); code != http.StatusUnauthorized {
		t.Errorf("access token as refresh = %d, want 401", code)
	}

	if code, _ := e.do(t, http.MethodPost, "/api/auth/logout", "", map[string]string{"refreshToken": second}); code != http.StatusOK {
		t.Errorf("logout = %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/auth/logout", "", map[string]string{"refreshToken": second}); code != http.StatusOK {
		t.Errorf("second logout = %d, want 200", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": second}); code != http.StatusUnauthorized {
		t.Errorf("refresh after logout = %d, want 401", code)
	}
}

func TestRecognize_StatusMapping(t *testing.T) {
	e := newEnv(t)
	e.registerStudent(t, "R101", "asha@example.edu")
	token := e.registerFaculty(t)

	tests := []struct {
		name      string
		image     string
		cands     []faceclient.Candidate
		err       error
		insertErr error
		wantCode  int
		wantError string
	}{
		{name: "recorded", image: "img", cands: []faceclient.Candidate{{PersonID: "R101", Confidence: 0.9}}, wantCode: http.StatusOK},
		{name: "missing image", wantCode: http.StatusBadRequest, wantError: "Image is required"},
		{name: "no match", image: "img", wantCode: http.StatusBadRequest, wantError: "No face recognized"},
		{
			name:      "recognition failed",
			image:     "img",
			err:       &faceclient.Error{Kind: faceclient.ErrRecognitionFailed, Op: "recognize", Reason: "no face detected"},
			wantCode:  http.StatusBadRequest,
			wantError: "Face recognition failed: no face detected",
		},
		{
			name:     "service unavailable",
			image:    "img",
			err:      &faceclient.Error{Kind: faceclient.ErrServiceUnavailable, Op: "recognize", Err: errors.New("connection refused")},
			wantCode: http.StatusServiceUnavailable,
		},
		{name: "unknown identity", image: "img", cands: []faceclient.Candidate{{PersonID: "R999", Confidence: 0.9}}, wantCode: http.StatusNotFound, wantError: "Student not found in database"},
		{
			name:      "persistence",
			image:     "img",
			cands:     []faceclient.Candidate{{PersonID: "R101", Confidence: 0.9}},
			insertErr: errors.New("disk full"),
			wantCode:  http.StatusInternalServerError,
			wantError: "Internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.rec.cands, e.rec.err = tt.cands, tt.err
			e.recs.InsertErr = tt.insertErr
			defer func() { e.recs.InsertErr = nil }()

			code, body := e.do(t, http.MethodPost, "/api/face-recognition/recognize", token, map[string]string{"image": tt.image, "subject": "Physics"})
			if code != tt.wantCode {
				t.Fatalf("code = %d %v, want %d", code, body, tt.wantCode)
			}
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
		})
	}

	if n := e.recs.Len(); n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
}

func TestRecognize_Success(t *testing.T) {
	e := newEnv(t)
	e.registerStudent(t, "R101", "asha@example.edu")
	token := e.registerFaculty(t)
	e.rec.cands = []faceclient.Candidate{{PersonID: "R101", Confidence: 0.97}}

	code, body := e.do(t, http.MethodPost, "/api/face-recognition/recognize", token, map[string]string{"image": "img", "subject": "Physics"})
	if code != http.StatusOK {
		t.Fatalf("recognize = %d %v", code, body)
	}
	if body["message"] != "Attendance marked successfully" {
		t.Errorf("message = %v", body["message"])
	}
	d := dataOf(t, body)
	rec := d["attendance"].(map[string]any)
	if rec["studentRollNo"] != "R101" || rec["subject"] != "Physics" || rec["class"] != "10th Grade" || rec["status"] != "present" {
		t.Errorf("attendance = %v", rec)
	}
	if d["student"].(map[string]any)["rollNo"] != "R101" {
		t.Errorf("student = %v", d["student"])
	}
}

func TestRecognize_RoleGating(t *testing.T) {
	e := newEnv(t)
	_, studentToken := e.registerStudent(t, "R101", "asha@example.edu")

	if code, _ := e.do(t, http.MethodPost, "/api/face-recognition/recognize", "", map[string]string{"image": "img"}); code != http.StatusUnauthorized {
		t.Errorf("anonymous = %d, want 401", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/face-recognition/recognize", studentToken, map[string]string{"image": "img"}); code != http.StatusForbidden {
		t.Errorf("student = %d, want 403", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/students", studentToken, nil); code != http.StatusForbidden {
		t.Errorf("student listing students = %d, want 403", code)
	}
}

func TestAttendanceQueries(t *testing.T) {
	e := newEnv(t)
	ashaID, ashaToken := e.registerStudent(t, "R101", "asha@example.edu")
	raviID, _ := e.registerStudent(t, "R102", "ravi@example.edu")
	token := e.registerFaculty(t)

	for _, roll := range []string{"R101", "R102", "R101"} {
		e.rec.cands = []faceclient.Candidate{{PersonID: roll, Confidence: 0.9}}
		if code, body := e.do(t, http.MethodPost, "/api/face-recognition/recognize", token, map[string]string{"image": "img", "subject": "Physics"}); code != http.StatusOK {
			t.Fatalf("recognize %s = %d %v", roll, code, body)
		}
	}

	code, body := e.do(t, http.MethodGet, "/api/attendance/student?studentId="+raviID, ashaToken, nil)
	if code != http.StatusOK {
		t.Fatalf("student history = %d %v", code, body)
	}
	for _, r := range listOf(t, body) {
		if r.(map[string]any)["studentId"] != ashaID {
			t.Errorf("student saw record %v", r)
		}
	}
	if n := len(listOf(t, body)); n != 2 {
		t.Errorf("own records = %d, want 2", n)
	}

	if code, _ := e.do(t, http.MethodGet, "/api/attendance/student", token, nil); code != http.StatusBadRequest {
		t.Errorf("faculty without studentId = %d, want 400", code)
	}

	today := time.Now().UTC().Format(time.DateOnly)
	q := url.Values{"className": {"10th Grade"}, "division": {"A"}, "date": {today}}
	code, body = e.do(t, http.MethodGet, "/api/attendance/class?"+q.Encode(), token, nil)
	if code != http.StatusOK || len(listOf(t, body)) != 3 {
		t.Errorf("class roll = %d %v", code, body)
	}

	q = url.Values{"subject": {"Physics"}, "endDate": {today}, "limit": {"2"}}
	code, body = e.do(t, http.MethodGet, "/api/face-recognition/attendance?"+q.Encode(), token, nil)
	if code != http.StatusOK || len(listOf(t, body)) != 2 {
		t.Errorf("date-only endDate with limit = %d %v", code, body)
	}

	bad := []string{
		"startDate=2025-02-01&endDate=2025-01-01",
		"startDate=yesterday",
		"limit=-1",
		"offset=x",
	}
	for _, qs := range bad {
		if code, _ := e.do(t, http.MethodGet, "/api/face-recognition/attendance?"+qs, token, nil); code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", qs, code)
		}
	}
}

func TestAttendanceHistorySurvivesProfileEdit(t *testing.T) {
	e := newEnv(t)
	id, studentToken := e.registerStudent(t, "R101", "asha@example.edu")
	token := e.registerFaculty(t)
	e.rec.cands = []faceclient.Candidate{{PersonID: "R101", Confidence: 0.9}}
	if code, body := e.do(t, http.MethodPost, "/api/face-recognition/recognize", token, map[string]string{"image": "img"}); code != http.StatusOK {
		t.Fatalf("recognize = %d %v", code, body)
	}

	code, body := e.do(t, http.MethodPut, "/api/students/"+id, token, map[string]string{"name": "Renamed", "batch": "2099"})
	if code != http.StatusOK || dataOf(t, body)["name"] != "Renamed" {
		t.Fatalf("update = %d %v", code, body)
	}

	code, body = e.do(t, http.MethodGet, "/api/attendance/student", studentToken, nil)
	if code != http.StatusOK {
		t.Fatalf("history = %d %v", code, body)
	}
	recs := listOf(t, body)
	if len(recs) != 1 {
		t.Fatalf("history = %v", recs)
	}
	rec := recs[0].(map[string]any)
	if rec["studentName"] != "Student R101" || rec["batch"] != "2024" {
		t.Errorf("history changed after profile edit: %v", rec)
	}
}

func TestNotifications(t *testing.T) {
	e := newEnv(t)
	e.registerStudent(t, "R101", "asha@example.edu")
	token := e.registerFaculty(t)
	e.rec.cands = []faceclient.Candidate{{PersonID: "R101", Confidence: 0.9}}
	e.do(t, http.MethodPost, "/api/face-recognition/recognize", token, map[string]string{"image": "img"})

	code, body := e.do(t, http.MethodGet, "/api/notifications", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list = %d %v", code, body)
	}
	items := listOf(t, body)
	if len(items) != 1 || items[0].(map[string]any)["rollNo"] != "R101" {
		t.Fatalf("notifications = %v", items)
	}

	if code, _ := e.do(t, http.MethodDelete, "/api/notifications", token, nil); code != http.StatusOK {
		t.Errorf("clear = %d", code)
	}
	_, body = e.do(t, http.MethodGet, "/api/notifications", token, nil)
	if n := len(listOf(t, body)); n != 0 {
		t.Errorf("after clear = %d items", n)
	}
}

func TestStudentManagement(t *testing.T) {
	e := newEnv(t)
	id, studentToken := e.registerStudent(t, "R101", "asha@example.edu")
	token := e.registerFaculty(t)

	code, body := e.do(t, http.MethodGet, "/api/students?division=A", token, nil)
	if code != http.StatusOK || len(listOf(t, body)) != 1 {
		t.Errorf("list = %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/students/nope", token, nil); code != http.StatusNotFound {
		t.Errorf("unknown student = %d, want 404", code)
	}

	code, body = e.do(t, http.MethodPut, "/api/students/"+id, token, map[string]string{"division": "B"})
	if code != http.StatusOK || dataOf(t, body)["division"] != "B" {
		t.Errorf("update = %d %v", code, body)
	}
	code, body = e.do(t, http.MethodGet, "/api/students/profile", studentToken, nil)
	if code != http.StatusOK || dataOf(t, body)["division"] != "B" {
		t.Errorf("profile = %d %v", code, body)
	}
	if _, hasHash := dataOf(t, body)["passwordHash"]; hasHash {
		t.Error("profile leaked password hash")
	}
	if _, hasDOB := dataOf(t, body)["dob"]; hasDOB {
		t.Error("profile without a birth date reported dob")
	}

	code, body = e.do(t, http.MethodGet, "/api/faculty/profile", token, nil)
	if code != http.StatusOK || dataOf(t, body)["employeeId"] != "E7" {
		t.Errorf("faculty profile = %d %v", code, body)
	}
	code, body = e.do(t, http.MethodGet, "/api/faculty", studentToken, nil)
	if code != http.StatusOK || len(listOf(t, body)) != 1 {
		t.Errorf("faculty list = %d %v", code, body)
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/api/health", "", nil)
	if code != http.StatusOK || body["status"] != "OK" || body["faceRecognitionUrl"] != "http://face.test" {
		t.Errorf("health = %d %v", code, body)
	}

	if code, _ := e.do(t, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Errorf("healthz = %d", code)
	}
	e.storeErr = errors.New("down")
	code, body = e.do(t, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusServiceUnavailable || body["checks"].(map[string]any)["store"] != "down" {
		t.Errorf("healthz degraded = %d %v", code, body)
	}

	code, body = e.do(t, http.MethodGet, "/api/test-connection", "", nil)
	if code != http.StatusOK || body["serviceResponse"].(map[string]any)["status"] != "healthy" {
		t.Errorf("test-connection = %d %v", code, body)
	}
	e.face.err = errors.New("connection refused")
	code, body = e.do(t, http.MethodGet, "/api/test-connection", "", nil)
	if code != http.StatusInternalServerError || body["url"] != "http://face.test" {
		t.Errorf("test-connection down = %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/face-recognition/health", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("face health down = %d, want 503", code)
	}

	if code, body := e.do(t, http.MethodGet, "/api/nowhere", "", nil); code != http.StatusNotFound || body["error"] != "API endpoint not found" {
		t.Errorf("no route = %d %v", code, body)
	}
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, func(d *api.Deps) { d.Limiter = httpmiddleware.NewTokenBucket(1, 1) })

	if code, _ := e.do(t, http.MethodGet, "/api/health", "", nil); code != http.StatusOK {
		t.Fatalf("first = %d", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/health", "", nil); code != http.StatusTooManyRequests {
		t.Errorf("second = %d, want 429", code)
	}
}

func TestCORS(t *testing.T) {
	e := newEnv(t, func(d *api.Deps) { d.AllowOrigins = []string{"http://dash.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://dash.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dash.example" {
		t.Errorf("allow origin = %q", got)
	}
}
