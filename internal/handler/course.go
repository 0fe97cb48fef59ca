package handler

import (
	"log/slog"
	"net/http"

	"github.com/josquinlarsen/tarpaulin/internal/auth"
	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/service"
)

// CourseHandler serves /courses and /courses/{id}.
type CourseHandler struct {
	courses *service.CourseService
	links   Links
	logger  *slog.Logger
}

func NewCourseHandler(courses *service.CourseService, links Links, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, links: links, logger: logger}
}

// createCourseRequest requires exactly these five fields; unknown fields
// are rejected by decodeJSON.
type createCourseRequest struct {
	Subject      *string `json:"subject" validate:"required,min=1,max=200"`
	Number       *int    `json:"number" validate:"required,gte=1"`
	Title        *string `json:"title" validate:"required,min=1,max=200"`
	Term         *string `json:"term" validate:"required,min=1,max=50"`
	InstructorID *int64  `json:"instructor_id" validate:"required,gte=1"`
}

type patchCourseRequest struct {
	Subject      *string `json:"subject" validate:"omitnil,min=1,max=200"`
	Number       *int    `json:"number" validate:"omitnil,gte=1"`
	Title        *string `json:"title" validate:"omitnil,min=1,max=200"`
	Term         *string `json:"term" validate:"omitnil,min=1,max=50"`
	InstructorID *int64  `json:"instructor_id" validate:"omitnil,gte=1"`
}

type courseResponse struct {
	model.Course
	Self string `json:"self"`
}

type courseListResponse struct {
	Courses []courseResponse `json:"courses"`
	Next    string           `json:"next,omitempty"`
}

func (h *CourseHandler) withSelf(r *http.Request, c *model.Course) courseResponse {
	return courseResponse{Course: *c, Self: h.links.Course(r, c.ID)}
}

// HandleCreate handles POST /courses (admin).
func (h *CourseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())

	var req createCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	course, err := h.courses.Create(r.Context(), sub, service.CourseInput{
		Subject:      *req.Subject,
		Number:       *req.Number,
		Title:        *req.Title,
		Term:         *req.Term,
		InstructorID: *req.InstructorID,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.withSelf(r, course))
}

// HandleList handles GET /courses?offset=&limit= (public).
func (h *CourseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultCourseLimit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	page, err := h.courses.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	resp := courseListResponse{Courses: make([]courseResponse, 0, len(page.Courses))}
	for i := range page.Courses {
		resp.Courses = append(resp.Courses, h.withSelf(r, &page.Courses[i]))
	}
	if page.More {
		resp.Next = h.links.CoursePage(r, page.NextOffset(), page.Limit)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /courses/{id} (public).
func (h *CourseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	course, err := h.courses.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withSelf(r, course))
}

// HandlePatch handles PATCH /courses/{id} (admin).
func (h *CourseHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req patchCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	course, err := h.courses.Patch(r.Context(), sub, id, model.CoursePatch{
		Subject:      req.Subject,
		Number:       req.Number,
		Title:        req.Title,
		Term:         req.Term,
		InstructorID: req.InstructorID,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withSelf(r, course))
}

// HandleDelete handles DELETE /courses/{id} (admin); enrollment for the
// course goes with it.
func (h *CourseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.courses.Delete(r.Context(), sub, id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
