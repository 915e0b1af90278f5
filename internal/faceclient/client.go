package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/campusattend/attendance/internal/metrics"
)

var (
	// ErrServiceUnavailable means the face service could not be reached in time.
	ErrServiceUnavailable = errors.New("face recognition service unavailable")
	// ErrRecognitionFailed means the service answered but did not find a confident match.
	ErrRecognitionFailed = errors.New("face recognition failed")
	// ErrEnrollmentFailed means the service refused to enroll a face.
	ErrEnrollmentFailed = errors.New("face registration failed")
	// ErrImageRequired is returned before any call when the image is empty.
	ErrImageRequired = errors.New("image is required")
)

// Error carries the service's own explanation alongside one of the sentinel kinds.
type Error struct {
	Kind   error
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Reason returns the face service's message for err, or "" when there is none.
func Reason(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// Session is the context passed through to the face service with each image.
type Session struct {
	Subject  string
	Class    string
	Division string
}

// Candidate is one identity the face service believes is in the image.
type Candidate struct {
	PersonID   string  `json:"person_id"`
	Confidence float64 `json:"confidence"`
}

// Enrollment is a request to store a new reference face.
type Enrollment struct {
	Image    string
	PersonID string
	Name     string
	UserType string
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client whose calls never outlive timeout.
func New(baseURL string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Recognize sends a still image and returns the candidates ordered by confidence, best first.
// An empty slice means the service ran but matched nobody.
func (c *Client) Recognize(ctx context.Context, image string, s Session) (cands []Candidate, err error) {
	if image == "" {
		return nil, ErrImageRequired
	}
	if c.Skip {
		return []Candidate{{PersonID: "mock-user", Confidence: 0.92}}, nil
	}
	defer func(start time.Time) { metrics.GatewayCall("recognize", start, err) }(time.Now())

	payload := map[string]string{
		"image":    image,
		"subject":  s.Subject,
		"class":    s.Class,
		"division": s.Division,
	}
	var out struct {
		Success bool        `json:"success"`
		Results []Candidate `json:"results"`
		Error   string      `json:"error"`
		Message string      `json:"message"`
	}
	if err := c.postJSON(ctx, "recognize", "/recognize", payload, &out, ErrRecognitionFailed); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &Error{Kind: ErrRecognitionFailed, Op: "recognize", Reason: firstNonEmpty(out.Error, out.Message)}
	}

	cands = make([]Candidate, 0, len(out.Results))
	for _, r := range out.Results {
		if r.PersonID == "" {
			continue
		}
		cands = append(cands, r)
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Confidence > cands[j].Confidence })
	return cands, nil
}

// Register enrolls a reference face and returns the embedding the service computed.
func (c *Client) Register(ctx context.Context, e Enrollment) (embedding []float32, err error) {
	if e.Image == "" {
		return nil, ErrImageRequired
	}
	if c.Skip {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	defer func(start time.Time) { metrics.GatewayCall("register", start, err) }(time.Now())

	payload := map[string]string{
		"image":     e.Image,
		"person_id": e.PersonID,
		"name":      e.Name,
		"user_type": e.UserType,
	}
	var out struct {
		Success   bool      `json:"success"`
		Embedding []float32 `json:"embedding"`
		Error     string    `json:"error"`
		Message   string    `json:"message"`
	}
	if err := c.postJSON(ctx, "register", "/register", payload, &out, ErrEnrollmentFailed); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &Error{Kind: ErrEnrollmentFailed, Op: "register", Reason: firstNonEmpty(out.Error, out.Message)}
	}
	return out.Embedding, nil
}

// Health checks if the face service is available and returns its status document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	if c.Skip {
		return map[string]any{"status": "ok", "mock": true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, unreachable("health", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, &Error{Kind: ErrServiceUnavailable, Op: "health", Reason: resp.Status}
	}
	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: ErrServiceUnavailable, Op: "health", Reason: "invalid response", Err: err}
	}
	return out, nil
}

// postJSON performs one bounded POST. 5xx and transport failures become
// ErrServiceUnavailable; other non-2xx answers become rejectKind.
func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any, rejectKind error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return unreachable(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return unreachable(op, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return &Error{Kind: ErrServiceUnavailable, Op: op, Reason: resp.Status}
	case resp.StatusCode >= 300:
		var rejected struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		_ = json.Unmarshal(raw, &rejected)
		reason := firstNonEmpty(rejected.Error, rejected.Message, rejected.Detail, resp.Status)
		return &Error{Kind: rejectKind, Op: op, Reason: reason}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: ErrServiceUnavailable, Op: op, Reason: "invalid response", Err: err}
	}
	return nil
}

// unreachable wraps transport errors. A caller that cancelled keeps context.Canceled
// so the HTTP layer does not report an outage for an aborted request.
func unreachable(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &Error{Kind: ErrServiceUnavailable, Op: op, Err: err}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
