package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/internal/registry"
	"github.com/nulzo/modelmart/internal/server/validator"
	"github.com/nulzo/modelmart/pkg/api"
)

const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotentReplayedHeader = "Idempotent-Replayed"
	maxIdempotencyKeyLength  = 255
)

type DeploymentHandler struct {
	registry registry.Service
	links    ExplorerLinker
}

func NewDeploymentHandler(reg registry.Service, links ExplorerLinker) *DeploymentHandler {
	return &DeploymentHandler{registry: reg, links: links}
}

// List returns deployments owned by ?userId, or all of them when absent.
//
// GET /api/v1/deployments
func (h *DeploymentHandler) List(c *gin.Context) {
	deployments, err := h.registry.List(c.Request.Context(), c.Query("userId"))
	if err != nil {
		_ = c.Error(api.InternalError("Failed to list deployments", err))
		return
	}

	c.JSON(http.StatusOK, toDeployments(deployments, h.links))
}

// Get returns a single deployment.
//
// GET /api/v1/deployments/:id
func (h *DeploymentHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(api.NotFoundError("Deployment not found"))
		return
	}

	d, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrDeploymentNotFound) {
			_ = c.Error(api.NotFoundError("Deployment not found"))
			return
		}
		_ = c.Error(api.InternalError("Failed to fetch deployment", err))
		return
	}

	c.JSON(http.StatusOK, toDeployment(d, h.links))
}

// Create records a new deployment. A repeated Idempotency-Key replays the
// original record instead of creating another one.
//
// POST /api/v1/deployments
func (h *DeploymentHandler) Create(c *gin.Context) {
	var req api.CreateDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	in := registry.CreateDeployment{
		ModelID: req.ModelID,
		UserID:  req.UserID,
		Chain:   req.Chain,
		Price:   req.Price,
	}

	key := c.GetHeader(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLength {
		_ = c.Error(api.BadRequestError("Idempotency-Key must be at most 255 characters"))
		return
	}

	if key == "" {
		d, err := h.registry.Create(c.Request.Context(), in)
		if err != nil {
			_ = c.Error(api.InternalError("Failed to create deployment", err))
			return
		}
		c.JSON(http.StatusCreated, toDeployment(d, h.links))
		return
	}

	d, replayed, err := h.registry.CreateOnce(c.Request.Context(), key, in)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrIdempotencyConflict):
			_ = c.Error(api.NewError(
				http.StatusUnprocessableEntity,
				"Idempotency Key Reused",
				"Idempotency-Key was already used with a different request body",
				api.WithType("/problems/idempotency-conflict"),
			))
		case errors.Is(err, registry.ErrIdempotencyInProgress):
			_ = c.Error(api.NewError(
				http.StatusConflict,
				"Request In Progress",
				"A request with this Idempotency-Key is still being processed, retry later",
				api.WithType("/problems/idempotency-in-progress"),
			))
		default:
			_ = c.Error(api.InternalError("Failed to create deployment", err))
		}
		return
	}

	if replayed {
		c.Header(IdempotentReplayedHeader, "true")
	}
	c.JSON(http.StatusCreated, toDeployment(d, h.links))
}
