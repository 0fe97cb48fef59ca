package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/repository"
)

// AvatarStore holds avatar images by name.
type AvatarStore interface {
	Put(ctx context.Context, name string, r io.Reader) error
	// Open also returns the content type recorded when the blob was written.
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, name string) error
}

// AvatarSource yields an uploaded file. UploadAvatar calls it only after
// the caller passed the ownership check, and closes the body.
type AvatarSource func() (filename string, body io.ReadCloser, err error)

// Profile is a user as shown by GET /users/{id}. CourseIDs is nil for
// admins; for instructors it lists the courses they teach and for students
// the courses they are enrolled in.
type Profile struct {
	User      model.User
	CourseIDs []int64
}

type UserService struct {
	store   repository.Store
	authz   *Authorizer
	avatars AvatarStore
	logger  *slog.Logger
}

func NewUserService(store repository.Store, authz *Authorizer, avatars AvatarStore, logger *slog.Logger) *UserService {
	return &UserService{
		store:   store,
		authz:   authz,
		avatars: avatars,
		logger:  logger,
	}
}

// List is admin only.
func (s *UserService) List(ctx context.Context, sub string) ([]model.User, error) {
	if _, err := s.authz.RequireRole(ctx, sub, model.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Get returns the profile of user id to that user or to any admin.
func (s *UserService) Get(ctx context.Context, sub string, id int64) (*Profile, error) {
	actor, err := s.authz.VerifyOwnUserID(ctx, sub, id, OwnerOrAdmin)
	if err != nil {
		return nil, err
	}

	user := actor
	if actor.ID != id {
		if user, err = s.store.Users().GetByID(ctx, id); err != nil {
			return nil, err
		}
	}

	profile := &Profile{User: *user}
	switch user.Role {
	case model.RoleInstructor:
		courses, err := s.store.Courses().ListByInstructor(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("listing courses of instructor %d: %w", id, err)
		}
		profile.CourseIDs = make([]int64, 0, len(courses))
		for _, c := range courses {
			profile.CourseIDs = append(profile.CourseIDs, c.ID)
		}
	case model.RoleStudent:
		rows, err := s.store.Enrollments().ListByStudent(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("listing enrollment of student %d: %w", id, err)
		}
		profile.CourseIDs = make([]int64, 0, len(rows))
		for _, row := range rows {
			profile.CourseIDs = append(profile.CourseIDs, row.CourseID)
		}
	}
	return profile, nil
}

// UploadAvatar stores the file from src as the avatar of user id, replacing
// any previous one. Only the user themself may do this. The blob is named
// "<id>_<filename>".
func (s *UserService) UploadAvatar(ctx context.Context, sub string, id int64, src AvatarSource) (*model.User, error) {
	user, err := s.authz.VerifyOwnUserID(ctx, sub, id, OwnerOnly)
	if err != nil {
		return nil, err
	}

	filename, body, err := src()
	if err != nil {
		return nil, err
	}
	defer body.Close()

	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == string(filepath.Separator) {
		return nil, apperror.ValidationFailed("file", "file name is required")
	}
	name := fmt.Sprintf("%d_%s", id, base)

	if err := s.avatars.Put(ctx, name, body); err != nil {
		return nil, err
	}

	previous := user.Avatar
	if err := s.store.Users().SetAvatar(ctx, id, name); err != nil {
		// a blob nothing points at would never be cleaned up
		if name != previous {
			if delErr := s.avatars.Delete(ctx, name); delErr != nil && !errors.Is(delErr, apperror.ErrNotFound) {
				s.logger.Warn("failed to remove unrecorded avatar",
					slog.String("name", name),
					slog.String("error", delErr.Error()),
				)
			}
		}
		return nil, fmt.Errorf("recording avatar for user %d: %w", id, err)
	}
	user.Avatar = name

	if previous != "" && previous != name {
		if err := s.avatars.Delete(ctx, previous); err != nil && !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("failed to remove replaced avatar",
				slog.String("name", previous),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("avatar uploaded", slog.Int64("userID", id), slog.String("name", name))
	return user, nil
}

// OpenAvatar returns the avatar of user id and its content type;
// apperror.ErrNotFound if unset. The caller closes the reader.
func (s *UserService) OpenAvatar(ctx context.Context, sub string, id int64) (io.ReadCloser, string, error) {
	user, err := s.authz.VerifyOwnUserID(ctx, sub, id, OwnerOnly)
	if err != nil {
		return nil, "", err
	}
	if !user.HasAvatar() {
		return nil, "", apperror.NotFound("avatar", id)
	}
	return s.avatars.Open(ctx, user.Avatar)
}

// DeleteAvatar removes the avatar of user id; apperror.ErrNotFound if unset.
func (s *UserService) DeleteAvatar(ctx context.Context, sub string, id int64) error {
	user, err := s.authz.VerifyOwnUserID(ctx, sub, id, OwnerOnly)
	if err != nil {
		return err
	}
	if !user.HasAvatar() {
		return apperror.NotFound("avatar", id)
	}

	if err := s.avatars.Delete(ctx, user.Avatar); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("deleting avatar of user %d: %w", id, err)
		}
		s.logger.Warn("avatar blob already missing", slog.String("name", user.Avatar))
	}
	if err := s.store.Users().SetAvatar(ctx, id, ""); err != nil {
		return fmt.Errorf("clearing avatar of user %d: %w", id, err)
	}

	s.logger.Info("avatar deleted", slog.Int64("userID", id))
	return nil
}
