package handler

import (
	"log/slog"
	"net/http"

	"github.com/josquinlarsen/tarpaulin/internal/auth"
	"github.com/josquinlarsen/tarpaulin/internal/service"
)

// EnrollmentHandler serves /courses/{id}/students.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	logger      *slog.Logger
}

func NewEnrollmentHandler(enrollments *service.EnrollmentService, logger *slog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, logger: logger}
}

// Both lists must be present; either may be empty.
type enrollmentRequest struct {
	Add    []int64 `json:"add" validate:"required"`
	Remove []int64 `json:"remove" validate:"required"`
}

// HandleUpdate handles PATCH /courses/{id}/students. Success is a bare 200.
func (h *EnrollmentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req enrollmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.enrollments.UpdateEnrollment(r.Context(), sub, id, req.Add, req.Remove); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleList handles GET /courses/{id}/students: a JSON array of student ids.
func (h *EnrollmentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	ids, err := h.enrollments.ListStudents(r.Context(), sub, id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}
