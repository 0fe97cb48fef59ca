// Package service holds the business rules of the API.
//
//	Handler (HTTP) → Service (rules) → repository.Store (data)
//
// Every mutating operation runs its gates in a fixed order: resolve the
// caller's identity, check role and ownership, validate the request, then
// write. A failure at any gate returns before anything is written.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/repository"
)

// OwnershipPolicy selects whether admins bypass a per-user ownership check.
type OwnershipPolicy int

const (
	// OwnerOnly admits only the user the resource belongs to. Avatar
	// endpoints use it, so admins cannot touch other users' avatars.
	OwnerOnly OwnershipPolicy = iota
	// OwnerOrAdmin additionally admits any admin (profile reads).
	OwnerOrAdmin
)

// Authorizer decides who may act on what. It resolves the caller's token
// subject to a user row and checks roles and ownership against it.
type Authorizer struct {
	store  repository.Store
	logger *slog.Logger
}

func NewAuthorizer(store repository.Store, logger *slog.Logger) *Authorizer {
	return &Authorizer{store: store, logger: logger}
}

// ResolveActor returns the single user whose sub matches. Zero or several
// matches are an authentication failure (apperror.ErrUnknownSubject).
func (a *Authorizer) ResolveActor(ctx context.Context, sub string) (*model.User, error) {
	return resolveActor(ctx, a.store.Users(), a.logger, sub)
}

func resolveActor(ctx context.Context, users repository.UserRepository, logger *slog.Logger, sub string) (*model.User, error) {
	if sub == "" {
		return nil, apperror.Unauthenticated("no subject")
	}

	matches, err := users.FindBySub(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("resolving actor: %w", err)
	}
	if len(matches) != 1 {
		logger.Warn("subject does not map to exactly one user",
			slog.String("sub", sub),
			slog.Int("matches", len(matches)),
		)
		return nil, apperror.UnknownSubject(sub, len(matches))
	}
	return &matches[0], nil
}

// RequireRole resolves the actor and denies unless its role is role.
func (a *Authorizer) RequireRole(ctx context.Context, sub string, role model.Role) (*model.User, error) {
	actor, err := a.ResolveActor(ctx, sub)
	if err != nil {
		return nil, err
	}
	if actor.Role != role {
		a.logger.Debug("role check failed",
			slog.Int64("actorID", actor.ID),
			slog.String("role", actor.Role.String()),
			slog.String("required", role.String()),
		)
		return nil, apperror.Forbidden(fmt.Sprintf("requires role %s", role))
	}
	return actor, nil
}

// VerifyOwnUserID resolves the actor and denies with apperror.ErrNotOwner
// unless the actor is user userID (or an admin, under OwnerOrAdmin).
func (a *Authorizer) VerifyOwnUserID(ctx context.Context, sub string, userID int64, policy OwnershipPolicy) (*model.User, error) {
	actor, err := a.ResolveActor(ctx, sub)
	if err != nil {
		return nil, err
	}
	if actor.ID == userID {
		return actor, nil
	}
	if policy == OwnerOrAdmin && actor.Role == model.RoleAdmin {
		return actor, nil
	}
	a.logger.Debug("ownership check failed",
		slog.Int64("actorID", actor.ID),
		slog.Int64("userID", userID),
	)
	return nil, apperror.NotOwner("user", userID)
}

// VerifyInstructorOwnership admits admins and the course's own instructor.
// Other instructors get apperror.ErrNotOwner; students are never admitted.
func (a *Authorizer) VerifyInstructorOwnership(course *model.Course, actor *model.User) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleInstructor:
		if course.InstructorID == actor.ID {
			return nil
		}
		return apperror.NotOwner("course", course.ID)
	default:
		return apperror.Forbidden("students may not manage enrollment")
	}
}

// AuthorizeCourseManager is the gate for the enrollment endpoints: the
// caller must exist, the course must exist, and the caller must be an admin
// or the course's instructor. A missing course is reported as forbidden.
func (a *Authorizer) AuthorizeCourseManager(ctx context.Context, sub string, courseID int64) (*model.User, *model.Course, error) {
	return a.authorizeCourseManagerIn(ctx, a.store, sub, courseID)
}

// authorizeCourseManagerIn runs the course-manager gate against store, so a
// caller holding a transaction can check and write in the same snapshot.
func (a *Authorizer) authorizeCourseManagerIn(ctx context.Context, store repository.Store, sub string, courseID int64) (*model.User, *model.Course, error) {
	actor, err := resolveActor(ctx, store.Users(), a.logger, sub)
	if err != nil {
		return nil, nil, err
	}

	course, err := store.Courses().GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, courseForbidden(courseID)
		}
		return nil, nil, fmt.Errorf("loading course %d: %w", courseID, err)
	}

	if err := a.VerifyInstructorOwnership(course, actor); err != nil {
		a.logger.Debug("course management denied",
			slog.Int64("actorID", actor.ID),
			slog.Int64("courseID", courseID),
			slog.String("error", err.Error()),
		)
		return nil, nil, err
	}
	return actor, course, nil
}

// courseForbidden reports a course id the caller may not act on, whether or
// not it exists.
func courseForbidden(id int64) error {
	return apperror.Forbidden(fmt.Sprintf("no access to course %d", id))
}
