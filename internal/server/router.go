package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/discid"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	editorContextKey    = "discograph_editor"
	requestIDContextKey = "discograph_request_id"
	requestIDHeader     = "X-Request-ID"
	defaultLoginPath    = "/login"
)

var (
	errMissingDiscIDService = errors.New("disc id service dependency required")
	errMissingReleaseLister = errors.New("release disc id lister dependency required")
	errMissingEditReader    = errors.New("edit reader dependency required")
	errMissingSessions      = errors.New("session validator dependency required")
)

// SessionValidator resolves the editor behind a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.EditorClaims, error)
}

// ReleaseDiscIDLister backs the release disc id listing that workflows redirect to.
type ReleaseDiscIDLister interface {
	GetRelease(ctx context.Context, id int64) (catalog.Release, error)
	ListReleaseDiscIDs(ctx context.Context, releaseID int64) ([]catalog.ReleaseDiscID, error)
}

// EditReader loads queued edits.
type EditReader interface {
	Get(ctx context.Context, id int64) (edits.Edit, []edits.EditNote, error)
}

// Dependencies lists the collaborators of the HTTP surface.
type Dependencies struct {
	DiscIDs        *discid.Service
	Releases       ReleaseDiscIDLister
	Edits          EditReader
	Sessions       SessionValidator
	LoginPath      string
	PageSize       int
	AllowedOrigins []string
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

// NewHTTPHandler wires the router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.DiscIDs == nil {
		return nil, errMissingDiscIDService
	}
	if deps.Releases == nil {
		return nil, errMissingReleaseLister
	}
	if deps.Edits == nil {
		return nil, errMissingEditReader
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loginPath := strings.TrimSpace(deps.LoginPath)
	if loginPath == "" {
		loginPath = defaultLoginPath
	}

	handler := &httpHandler{
		discIDs:   deps.DiscIDs,
		releases:  deps.Releases,
		edits:     deps.Edits,
		sessions:  deps.Sessions,
		loginPath: loginPath,
		pageSize:  deps.PageSize,
		logger:    logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.GET("/cdtoc/:discid", handler.handleLookup)
	router.GET("/release/:id/discids", handler.handleReleaseDiscIDs)
	router.GET("/edit/:id", handler.handleGetEdit)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	protected := router.Group("/")
	protected.Use(handler.requireEditor)
	protected.GET("/cdtoc/attach", handler.handlePrepareAttach)
	protected.POST("/cdtoc/attach", handler.handleAttach)
	protected.GET("/cdtoc/move", handler.handlePrepareMove)
	protected.POST("/cdtoc/move", handler.handleMove)
	protected.GET("/cdtoc/remove", handler.handlePrepareRemove)
	protected.POST("/cdtoc/remove", handler.handleRemove)
	protected.GET("/cdtoc/:discid/set-durations", handler.handlePrepareSetTrackLengths)
	protected.POST("/cdtoc/:discid/set-durations", handler.handleSetTrackLengths)

	return router, nil
}

type httpHandler struct {
	discIDs   *discid.Service
	releases  ReleaseDiscIDLister
	edits     EditReader
	sessions  SessionValidator
	loginPath string
	pageSize  int
	logger    *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Accept-Language", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}
