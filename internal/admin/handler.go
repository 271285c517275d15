// Package admin exposes the operator surface: form and field definition
// management. All routes sit behind the admin-role middleware.
package admin

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"metaform-backend/internal/engine"
	"metaform-backend/internal/fieldtype"
	"metaform-backend/internal/forms"
	"metaform-backend/internal/store"
)

type Handler struct {
	forms *forms.Store
	types *fieldtype.Registry
}

func NewHandler(f *forms.Store, types *fieldtype.Registry) *Handler {
	return &Handler{forms: f, types: types}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/field-types", h.ListFieldTypes)

	admin.Get("/forms", h.ListForms)
	admin.Get("/forms/:name", h.GetForm)
	admin.Post("/forms", h.CreateForm)
	admin.Delete("/forms/:name", h.DeleteForm)

	admin.Post("/forms/:name/fields", h.AddField)
	admin.Put("/forms/:name/fields/order", h.ReorderFields)
	admin.Delete("/fields/:id", h.RemoveField)
}

func (h *Handler) ListFieldTypes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.types.Types()})
}

func (h *Handler) ListForms(c *fiber.Ctx) error {
	list, err := h.forms.ListForms(c.Context())
	if err != nil {
		return fmt.Errorf("list forms: %w", err)
	}
	return c.JSON(fiber.Map{"data": list})
}

func (h *Handler) GetForm(c *fiber.Ctx) error {
	name := c.Params("name")
	form, err := h.forms.GetForm(c.Context(), name)
	if err != nil {
		return h.respond(c, fmt.Errorf("get form %s: %w", name, err))
	}
	fields, err := h.forms.ListFields(c.Context(), form.ID)
	if err != nil {
		return fmt.Errorf("list fields: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"form": form, "fields": fields}})
}

func (h *Handler) CreateForm(c *fiber.Ctx) error {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		CheckExpr   string `json:"check_expr"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	form, err := h.forms.CreateForm(c.Context(), body.Name, body.Description, body.CheckExpr)
	if err != nil {
		return h.respond(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"data": form})
}

// DeleteForm cascades to the form's fields and their choices. Stored
// metadata is only weakly keyed by field name and stays behind.
func (h *Handler) DeleteForm(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.forms.DeleteForm(c.Context(), name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, engine.NotFoundError("form", name))
		}
		return fmt.Errorf("delete form %s: %w", name, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": name}})
}

func (h *Handler) AddField(c *fiber.Ctx) error {
	name := c.Params("name")
	form, err := h.forms.GetForm(c.Context(), name)
	if err != nil {
		return h.respond(c, fmt.Errorf("get form %s: %w", name, err))
	}

	var def forms.FieldDef
	if err := c.BodyParser(&def); err != nil {
		return respondError(c, engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	fieldID, err := h.forms.AddField(c.Context(), form.ID, def)
	if err != nil {
		return h.respond(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{"id": fieldID}})
}

func (h *Handler) RemoveField(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.forms.RemoveField(c.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, engine.NotFoundError("field", id))
		}
		return fmt.Errorf("remove field %s: %w", id, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": id}})
}

func (h *Handler) ReorderFields(c *fiber.Ctx) error {
	name := c.Params("name")
	form, err := h.forms.GetForm(c.Context(), name)
	if err != nil {
		return h.respond(c, fmt.Errorf("get form %s: %w", name, err))
	}

	var body struct {
		FieldIDs []string `json:"field_ids"`
	}
	if err := c.BodyParser(&body); err != nil || len(body.FieldIDs) == 0 {
		return respondError(c, engine.NewAppError("INVALID_PAYLOAD", 400, "field_ids is required"))
	}

	if err := h.forms.Reorder(c.Context(), form.ID, body.FieldIDs); err != nil {
		return h.respond(c, err)
	}

	fields, err := h.forms.ListFields(c.Context(), form.ID)
	if err != nil {
		return fmt.Errorf("list fields: %w", err)
	}
	return c.JSON(fiber.Map{"data": fields})
}

// respond maps definition-time sentinel errors to their HTTP shape and
// passes everything else to the global error handler.
func (h *Handler) respond(c *fiber.Ctx, err error) error {
	if appErr := engine.MapDefinitionError(err); appErr != nil {
		return respondError(c, appErr)
	}
	return err
}

func respondError(c *fiber.Ctx, appErr *engine.AppError) error {
	return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
}
