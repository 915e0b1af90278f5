// Package api exposes the attendance backend over HTTP with gin.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/httpmiddleware"
	"github.com/campusattend/attendance/internal/identity"
	"github.com/campusattend/attendance/internal/notify"
)

// FaceHealth reports the face service's own status document.
type FaceHealth interface {
	Health(ctx context.Context) (map[string]any, error)
}

// Check is one dependency probe reported by /healthz.
type Check func(ctx context.Context) error

// Deps are the services the handlers call into.
type Deps struct {
	Identities *identity.Service
	Attendance *attendance.Service
	Face       FaceHealth
	Tokens     *auth.Tokens
	Sessions   auth.Sessions
	Feed       notify.Feed
	Limiter    httpmiddleware.Limiter
	Checks     map[string]Check
	Logger     *slog.Logger

	Env            string
	FaceServiceURL string
	AllowOrigins   []string
}

// Handler holds the dependencies shared by every route.
type Handler struct {
	Deps
	started time.Time
}

// NewRouter builds the gin engine with middleware and every route mounted.
func NewRouter(d Deps) *gin.Engine {
	registerValidators()
	h := &Handler{Deps: d, started: time.Now()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(d.Logger, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(d.AllowOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter, d.Logger))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	authn := auth.Authenticate(d.Tokens)
	faculty := auth.RequireRole(identity.RoleFaculty)
	student := auth.RequireRole(identity.RoleStudent)

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/test-connection", h.TestConnection)

		a := api.Group("/auth")
		a.POST("/register/student", h.RegisterStudent)
		a.POST("/register/faculty", h.RegisterFaculty)
		a.POST("/register-faculty", h.RegisterFaculty)
		a.POST("/login", h.Login)
		a.GET("/verify", authn, h.Verify)
		a.POST("/refresh", h.Refresh)
		a.POST("/logout", h.Logout)

		s := api.Group("/students", authn)
		s.GET("/profile", student, h.StudentProfile)
		s.GET("", faculty, h.ListStudents)
		s.GET("/:id", faculty, h.GetStudent)
		s.PUT("/:id", faculty, h.UpdateStudent)

		f := api.Group("/faculty", authn)
		f.GET("/profile", faculty, h.FacultyProfile)
		f.GET("", h.ListFaculty)

		fr := api.Group("/face-recognition")
		fr.POST("/recognize", authn, faculty, h.Recognize)
		fr.GET("/attendance", authn, h.QueryAttendance)
		fr.GET("/health", h.FaceServiceHealth)

		at := api.Group("/attendance", authn)
		at.GET("/student", h.StudentAttendance)
		at.GET("/class", faculty, h.ClassAttendance)

		n := api.Group("/notifications", authn, faculty)
		n.GET("", h.ListNotifications)
		n.DELETE("", h.ClearNotifications)
	}

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "API endpoint not found")
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Credentials cannot be combined with a literal "*", so echo the caller's origin.
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
