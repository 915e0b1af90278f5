package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestTokens() *Tokens {
	return NewTokens("campus-attendance", "test-key", time.Hour, 24*time.Hour)
}

func TestIssueAndParse(t *testing.T) {
	tk := newTestTokens()
	p := Principal{ID: "f1", Role: "faculty", Email: "rao@example.edu"}

	pair, err := tk.Issue(p)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if pair.RefreshID == "" || pair.AccessToken == pair.RefreshToken {
		t.Fatalf("Issue() = %+v", pair)
	}

	claims, err := tk.Parse(pair.AccessToken, KindAccess)
	if err != nil {
		t.Fatalf("Parse(access) error = %v", err)
	}
	if claims.Principal() != p {
		t.Errorf("Principal() = %+v, want %+v", claims.Principal(), p)
	}

	refresh, err := tk.Parse(pair.RefreshToken, KindRefresh)
	if err != nil {
		t.Fatalf("Parse(refresh) error = %v", err)
	}
	if refresh.ID != pair.RefreshID {
		t.Errorf("refresh jti = %q, want %q", refresh.ID, pair.RefreshID)
	}

	if _, err := tk.Parse(pair.RefreshToken, KindAccess); !errors.Is(err, ErrWrongKind) {
		t.Errorf("refresh as access error = %v, want ErrWrongKind", err)
	}
}

func TestParse_Rejects(t *testing.T) {
	tk := newTestTokens()
	pair, _ := tk.Issue(Principal{ID: "s1", Role: "student"})

	other := NewTokens("campus-attendance", "other-key", time.Hour, time.Hour)
	if _, err := other.Parse(pair.AccessToken, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong key error = %v", err)
	}

	wrongIssuer := NewTokens("someone-else", "test-key", time.Hour, time.Hour)
	if _, err := wrongIssuer.Parse(pair.AccessToken, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong issuer error = %v", err)
	}

	expired := newTestTokens()
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := expired.Parse(pair.AccessToken, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired error = %v", err)
	}

	if _, err := tk.Parse("not-a-token", KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage error = %v", err)
	}
}

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessions()

	_ = s.Save(ctx, "a", "s1", time.Hour)
	if got, _ := s.Consume(ctx, "a"); got != "s1" {
		t.Errorf("Consume() = %q, want s1", got)
	}
	if got, _ := s.Consume(ctx, "a"); got != "" {
		t.Errorf("second Consume() = %q, want empty", got)
	}

	_ = s.Save(ctx, "b", "s1", time.Hour)
	_ = s.Revoke(ctx, "b")
	if got, _ := s.Consume(ctx, "b"); got != "" {
		t.Errorf("Consume() after Revoke = %q", got)
	}

	_ = s.Save(ctx, "c", "s1", time.Minute)
	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if got, _ := s.Consume(ctx, "c"); got != "" {
		t.Errorf("Consume() of expired = %q", got)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tk := newTestTokens()
	student, _ := tk.Issue(Principal{ID: "s1", Role: "student"})
	faculty, _ := tk.Issue(Principal{ID: "f1", Role: "faculty"})

	r := gin.New()
	r.GET("/faculty-only", Authenticate(tk), RequireRole("faculty"), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.String(http.StatusOK, p.ID)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"refresh token", "Bearer " + faculty.RefreshToken, http.StatusUnauthorized},
		{"wrong role", "Bearer " + student.AccessToken, http.StatusForbidden},
		{"ok", "Bearer " + faculty.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/faculty-only", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && w.Body.String() != "f1" {
				t.Errorf("body = %q", w.Body.String())
			}
		})
	}
}
