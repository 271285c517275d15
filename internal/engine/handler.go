package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"metaform-backend/internal/fieldtype"
	"metaform-backend/internal/forms"
	"metaform-backend/internal/metastore"
	"metaform-backend/internal/schema"
	"metaform-backend/internal/store"
)

type Handler struct {
	forms *forms.Store
	meta  *metastore.Store
	types *fieldtype.Registry
	coord *Coordinator
}

func NewHandler(f *forms.Store, m *metastore.Store, types *fieldtype.Registry) *Handler {
	return &Handler{forms: f, meta: m, types: types, coord: NewCoordinator(m)}
}

func RegisterMetadataRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Get("/metadata/:type/:id", h.Get)
	api.Delete("/metadata/:type/:id", h.DeleteAll)
	api.Post("/metadata/:type/:id/copy", h.Copy)
	api.Put("/forms/:form/metadata/:type/:id", h.Submit)
}

// Get handles GET /api/metadata/:type/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	values, err := h.meta.Get(c.Context(), c.Params("type"), c.Params("id"))
	if err != nil {
		return fmt.Errorf("get metadata: %w", err)
	}
	return c.JSON(fiber.Map{"data": values})
}

// DeleteAll handles DELETE /api/metadata/:type/:id
func (h *Handler) DeleteAll(c *fiber.Ctx) error {
	if err := h.meta.DeleteAll(c.Context(), c.Params("type"), c.Params("id")); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// Copy handles POST /api/metadata/:type/:id/copy
func (h *Handler) Copy(c *fiber.Ctx) error {
	var body struct {
		EntityType string `json:"entity_type"`
		EntityID   string `json:"entity_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.EntityType == "" || body.EntityID == "" {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Destination entity_type and entity_id are required"))
	}

	srcType, srcID := c.Params("type"), c.Params("id")
	if err := h.meta.Copy(c.Context(), srcType, srcID, body.EntityType, body.EntityID); err != nil {
		return fmt.Errorf("copy metadata: %w", err)
	}

	values, err := h.meta.Get(c.Context(), body.EntityType, body.EntityID)
	if err != nil {
		return fmt.Errorf("get metadata: %w", err)
	}
	return c.JSON(fiber.Map{"data": values})
}

// Submit handles PUT /api/forms/:form/metadata/:type/:id
func (h *Handler) Submit(c *fiber.Ctx) error {
	formName := c.Params("form")
	form, err := h.forms.GetForm(c.Context(), formName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, UnknownFormError(formName))
		}
		return fmt.Errorf("get form %s: %w", formName, err)
	}

	fields, err := h.forms.ListFields(c.Context(), form.ID)
	if err != nil {
		return fmt.Errorf("list fields: %w", err)
	}

	sch, err := schema.Compile(h.types, form, fields)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", formName, err)
	}

	var raw map[string]any
	if err := c.BodyParser(&raw); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	persisted, details, err := h.coord.Submit(c.Context(), sch, c.Params("type"), c.Params("id"), raw)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			return respondError(c, NewAppError("PERSISTENCE_FAILED", 500, "Submission could not be persisted, retry the whole submission"))
		}
		return err
	}
	if len(details) > 0 {
		return respondError(c, ValidationError(details))
	}

	return c.JSON(fiber.Map{"data": persisted})
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}
