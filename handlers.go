package main

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"platelog/pkg/app"
	"platelog/pkg/config"
	"platelog/pkg/pipeline"
	"platelog/pkg/store"
	"platelog/pkg/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/script.js
var scriptJS []byte

const maxReadingsPage = 100

var errNoFile = errors.New("No file provided")

type server struct {
	cfg       config.Config
	receiver  *upload.Receiver
	pipeline  *pipeline.Pipeline
	readings  *store.Readings
	jwtSecret []byte
	logger    *slog.Logger
}

func newServer(a *app.App) *server {
	return &server{
		cfg:       a.Config,
		receiver:  a.Receiver,
		pipeline:  a.Pipeline,
		readings:  a.Readings,
		jwtSecret: []byte(a.Config.Auth.JWTSecret),
		logger:    a.Logger,
	}
}

func (s *server) historyEnabled() bool {
	return s.readings != nil && s.cfg.HistoryEnabled()
}

func setupRoutes(r *gin.Engine, s *server) {
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	r.GET("/", s.indexHandler)
	r.POST("/", s.indexHandler)
	r.POST("/upload", s.uploadHandler)
	r.Static(s.cfg.Upload.URLPrefix, s.cfg.Upload.Dir)
	r.GET("/static/script.js", scriptHandler)
	r.GET("/healthz", s.healthHandler)

	if !s.historyEnabled() {
		return
	}
	r.POST("/login", s.loginHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware(s.jwtSecret))
	authGroup.GET("/readings", s.listReadingsHandler)
	authGroup.GET("/readings/:id", s.getReadingHandler)
}

func jwtAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		token, err := jwt.Parse(authHeader[7:], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		c.Set("username", username)
		c.Next()
	}
}

// receive stores the posted image and runs it through the pipeline. The
// returned status is only meaningful when err is not nil.
func (s *server) receive(c *gin.Context) (*pipeline.Outcome, int, error) {
	s.receiver.LimitBody(c.Writer, c.Request)
	fh, err := upload.FormFile(c.Request, upload.DefaultFields...)
	if errors.Is(err, upload.ErrTooLarge) {
		return nil, http.StatusRequestEntityTooLarge, err
	}
	if err != nil {
		return nil, http.StatusBadRequest, errNoFile
	}
	img, err := s.receiver.Save(fh)
	switch {
	case errors.Is(err, upload.ErrNoFileProvided):
		return nil, http.StatusBadRequest, errNoFile
	case errors.Is(err, upload.ErrTooLarge):
		return nil, http.StatusRequestEntityTooLarge, err
	case errors.Is(err, upload.ErrUnsupportedType):
		return nil, http.StatusUnsupportedMediaType, err
	case err != nil:
		s.logger.Error("failed to store upload", "file", fh.Filename, "error", err)
		return nil, http.StatusInternalServerError, errors.New("Error processing image: " + err.Error())
	}
	out := s.pipeline.Process(c.Request.Context(), img)
	out.Stage = pipeline.StageRendered
	return out, http.StatusOK, nil
}

func (s *server) indexHandler(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.HTML(http.StatusOK, "index.html", gin.H{})
		return
	}
	out, status, err := s.receive(c)
	if err != nil {
		c.HTML(status, "index.html", gin.H{"error_message": err.Error()})
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"plate_number":  out.PlateNumber,
		"image_path":    out.ImageURL,
		"remote_url":    out.RemoteURL,
		"error_message": out.Error,
	})
}

// uploadHandler is the JSON variant of the form post, used by script.js.
func (s *server) uploadHandler(c *gin.Context) {
	out, status, err := s.receive(c)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plate_number": out.PlateNumber,
		"image_path":   out.ImageURL,
		"remote_url":   out.RemoteURL,
		"error":        out.Error,
	})
}

func scriptHandler(c *gin.Context) {
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", scriptJS)
}

func (s *server) healthHandler(c *gin.Context) {
	database := "disabled"
	if s.readings != nil {
		database = "enabled"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"ocr_engine":      s.cfg.OCR.Engine,
		"publish_backend": s.cfg.Publish.Backend,
		"database":        database,
	})
}

func (s *server) loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := Authenticate(s.cfg.Auth, req.Username, req.Password); err != nil {
		s.logger.Warn("login rejected", "username", req.Username, "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	tokenString, err := issueToken(s.jwtSecret, s.cfg.Auth.AdminUser, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString})
}

// listReadingsHandler returns the latest readings, newest first.
func (s *server) listReadingsHandler(c *gin.Context) {
	limit := maxReadingsPage
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxReadingsPage)
	}
	items, err := s.readings.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("list readings failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) getReadingHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	r, err := s.readings.Get(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		s.logger.Error("get reading failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, r)
}
