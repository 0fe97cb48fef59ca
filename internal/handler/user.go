package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
	"github.com/josquinlarsen/tarpaulin/internal/auth"
	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/service"
)

// UserHandler serves /users, /users/{id} and the avatar endpoints.
type UserHandler struct {
	users          *service.UserService
	links          Links
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewUserHandler(users *service.UserService, links Links, maxUploadBytes int64, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:          users,
		links:          links,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

type userSummary struct {
	ID   int64      `json:"id"`
	Role model.Role `json:"role"`
	Sub  string     `json:"sub"`
}

// profileResponse omits "courses" for admins (nil slice) but keeps an
// empty list for instructors and students.
type profileResponse struct {
	ID        int64      `json:"id"`
	Role      model.Role `json:"role"`
	Sub       string     `json:"sub"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Courses   []string   `json:"courses,omitzero"`
}

type avatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

// HandleList handles GET /users (admin).
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())

	users, err := h.users.List(r.Context(), sub)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	resp := make([]userSummary, 0, len(users))
	for _, u := range users {
		resp = append(resp, userSummary{ID: u.ID, Role: u.Role, Sub: u.Sub})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /users/{id} (the user themself or an admin).
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	profile, err := h.users.Get(r.Context(), sub, id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	u := profile.User
	resp := profileResponse{ID: u.ID, Role: u.Role, Sub: u.Sub}
	if u.HasAvatar() {
		resp.AvatarURL = h.links.Avatar(r, u.ID)
	}
	if profile.CourseIDs != nil {
		resp.Courses = make([]string, 0, len(profile.CourseIDs))
		for _, cid := range profile.CourseIDs {
			resp.Courses = append(resp.Courses, h.links.Course(r, cid))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleUploadAvatar handles POST /users/{id}/avatar with the image in the
// multipart field "file" (owner only).
func (h *UserHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	src := func() (string, io.ReadCloser, error) {
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return "", nil, apperror.ValidationFailed("file", "file is too large")
			}
			return "", nil, apperror.ValidationFailed("file", "multipart field \"file\" is required")
		}
		return header.Filename, file, nil
	}

	user, err := h.users.UploadAvatar(r.Context(), sub, id, src)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avatarResponse{AvatarURL: h.links.Avatar(r, user.ID)})
}

// HandleGetAvatar handles GET /users/{id}/avatar (owner only).
func (h *UserHandler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	rc, contentType, err := h.users.OpenAvatar(r.Context(), sub, id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("avatar download interrupted",
			slog.Int64("userID", id),
			slog.String("error", err.Error()),
		)
	}
}

// HandleDeleteAvatar handles DELETE /users/{id}/avatar (owner only).
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.SubjectFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.users.DeleteAvatar(r.Context(), sub, id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
