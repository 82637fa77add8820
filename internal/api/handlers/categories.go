package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/civicsquare/server/internal/api/middleware"
	"github.com/civicsquare/server/internal/api/problem"
	"github.com/civicsquare/server/internal/domain/catalog"
)

type CategoriesHandler struct {
	Catalog *catalog.Service
	Env     string
}

func NewCategoriesHandler(svc *catalog.Service, env string) *CategoriesHandler {
	return &CategoriesHandler{Catalog: svc, Env: env}
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type createCategoryRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Catalog.ListCategories(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if !decodeAndValidate(w, r, &req, h.Env) {
		return
	}

	category, err := h.Catalog.CreateCategory(r.Context(), req.Name, actorEmail(r))
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrCategoryExists):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, h.Env,
				problem.WithErrors(map[string]interface{}{"name": "A category with this name already exists."}))
		case errors.Is(err, catalog.ErrEmptyName):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, h.Env,
				problem.WithErrors(map[string]interface{}{"name": "This field is required."}))
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name})
}

// Delete removes a category and, through the schema cascade, every event
// filed under it.
func (h *CategoriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Category not found", err, h.Env)
		return
	}

	if err := h.Catalog.DeleteCategory(r.Context(), id, actorEmail(r)); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Category not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// actorEmail resolves the audit actor from whichever auth surface admitted
// the request.
func actorEmail(r *http.Request) string {
	if user := middleware.CurrentUser(r); user != nil {
		return user.Email
	}
	if claims := middleware.TokenClaims(r); claims != nil {
		return claims.Subject
	}
	return "unknown"
}
