package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/config"
	"github.com/metasync/seo-gateway/pkg/events"
	"github.com/metasync/seo-gateway/pkg/models"
	"github.com/metasync/seo-gateway/pkg/types"
)

var validate = validator.New()

func init() {
	if err := validate.RegisterValidation("route", validateRouteField); err != nil {
		panic(err)
	}
}

// validateRouteField accepts absolute http(s) URLs.
func validateRouteField(fl validator.FieldLevel) bool {
	u, err := url.Parse(strings.TrimSpace(fl.Field().String()))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// OverrideStore is the persistence the admin API manages.
type OverrideStore interface {
	Lookup(ctx context.Context, route string) (types.Overrides, error)
	Upsert(ctx context.Context, o *models.PageOverride) error
	Delete(ctx context.Context, route string) error
	List(ctx context.Context) ([]models.PageOverride, error)
}

// Notifier delivers an event to every gateway process.
type Notifier func(ctx context.Context, event events.Event) error

type OverrideRequest struct {
	Route       string   `json:"route" validate:"required,route"`
	Title       string   `json:"title" validate:"max=300"`
	Description string   `json:"description" validate:"max=1000"`
	LockedKeys  []string `json:"locked_keys" validate:"dive,required"`
}

type InvalidateRequest struct {
	Route  string   `json:"route" validate:"omitempty,route"`
	Routes []string `json:"routes" validate:"dive,route"`
}

// AdminServer manages page overrides and cache invalidation on its own port.
type AdminServer struct {
	*BaseServer
	store  OverrideStore
	notify Notifier
}

// NewAdminServer builds the admin API. A nil store leaves the override
// routes out.
func NewAdminServer(config *config.Config, logger *logrus.Logger, store OverrideStore, notify Notifier) *AdminServer {
	s := &AdminServer{
		BaseServer: NewBaseServer(config, logger),
		store:      store,
		notify:     notify,
	}
	s.setupRoutes()
	return s
}

func (s *AdminServer) setupRoutes() {
	s.setupHealthCheck()

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/invalidate", s.invalidate)

		if s.store != nil {
			overrides := v1.Group("/overrides")
			{
				overrides.GET("", s.listOverrides)
				overrides.GET("/lookup", s.lookupOverride)
				overrides.PUT("", s.upsertOverride)
				overrides.DELETE("", s.deleteOverride)
			}
		}
	}
}

func (s *AdminServer) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Server.AdminPort)
	s.logger.WithField("addr", addr).Info("Starting admin server")
	return s.runServer(addr)
}

func (s *AdminServer) listOverrides(c *gin.Context) {
	rows, err := s.store.List(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list overrides")
		respond(c, http.StatusInternalServerError, "failed to list overrides", nil)
		return
	}
	respond(c, http.StatusOK, "ok", rows)
}

func (s *AdminServer) lookupOverride(c *gin.Context) {
	route := c.Query("route")
	if route == "" {
		respond(c, http.StatusBadRequest, "route is required", nil)
		return
	}

	o, err := s.store.Lookup(c.Request.Context(), route)
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up override")
		respond(c, http.StatusInternalServerError, "failed to look up override", nil)
		return
	}

	locked := make([]string, 0, len(o.Locked))
	for k := range o.Locked {
		locked = append(locked, k)
	}
	respond(c, http.StatusOK, "ok", gin.H{
		"route":       route,
		"title":       o.Title,
		"description": o.Description,
		"locked_keys": locked,
	})
}

func (s *AdminServer) upsertOverride(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.WithError(err).Error("Failed to bind request")
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		respond(c, http.StatusBadRequest, validationMessage(err), nil)
		return
	}

	row := &models.PageOverride{
		Route:       req.Route,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		LockedKeys:  models.KeyList(req.LockedKeys),
	}
	if err := s.store.Upsert(c.Request.Context(), row); err != nil {
		s.logger.WithError(err).Error("Failed to save override")
		respond(c, http.StatusInternalServerError, "failed to save override", nil)
		return
	}

	respond(c, http.StatusOK, "saved", row)
}

func (s *AdminServer) deleteOverride(c *gin.Context) {
	route := c.Query("route")
	if route == "" {
		respond(c, http.StatusBadRequest, "route is required", nil)
		return
	}

	if err := s.store.Delete(c.Request.Context(), route); err != nil {
		s.logger.WithError(err).Error("Failed to delete override")
		respond(c, http.StatusInternalServerError, "failed to delete override", nil)
		return
	}

	c.Status(http.StatusNoContent)
}

// invalidate drops cached suggestions for the given routes everywhere.
func (s *AdminServer) invalidate(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		respond(c, http.StatusBadRequest, validationMessage(err), nil)
		return
	}

	event := events.Event{Type: events.TypeContentChanged, Route: req.Route, Routes: req.Routes}
	targets := event.Targets()
	if len(targets) == 0 {
		respond(c, http.StatusBadRequest, "route or routes is required", nil)
		return
	}

	if err := s.notify(c.Request.Context(), event); err != nil {
		s.logger.WithError(err).Error("Failed to publish invalidation")
		respond(c, http.StatusInternalServerError, "failed to invalidate", nil)
		return
	}

	respond(c, http.StatusAccepted, "invalidated", gin.H{"routes": targets})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
