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

const (
	DefaultCourseLimit = 3
	MaxCourseLimit     = 100
)

// CourseInput is a complete course as submitted by a client.
type CourseInput struct {
	Subject      string
	Number       int
	Title        string
	Term         string
	InstructorID int64
}

// CoursePage is one page of the course listing.
type CoursePage struct {
	Courses []model.Course
	Limit   int
	Offset  int
	More    bool
}

// NextOffset is the offset of the page after this one.
func (p *CoursePage) NextOffset() int {
	return p.Offset + p.Limit
}

type CourseService struct {
	store       repository.Store
	authz       *Authorizer
	enrollments *EnrollmentService
	logger      *slog.Logger
}

func NewCourseService(store repository.Store, authz *Authorizer, enrollments *EnrollmentService, logger *slog.Logger) *CourseService {
	return &CourseService{
		store:       store,
		authz:       authz,
		enrollments: enrollments,
		logger:      logger,
	}
}

// Create is admin only. InstructorID must reference an instructor.
func (s *CourseService) Create(ctx context.Context, sub string, in CourseInput) (*model.Course, error) {
	if _, err := s.authz.RequireRole(ctx, sub, model.RoleAdmin); err != nil {
		return nil, err
	}

	course := &model.Course{
		Subject:      in.Subject,
		Number:       in.Number,
		Title:        in.Title,
		Term:         in.Term,
		InstructorID: in.InstructorID,
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := checkInstructor(ctx, tx.Users(), in.InstructorID); err != nil {
			return err
		}
		return tx.Courses().Create(ctx, course)
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrValidation) {
			s.logger.Error("failed to create course", slog.String("error", err.Error()))
		}
		return nil, err
	}

	s.logger.Info("course created",
		slog.Int64("id", course.ID),
		slog.String("subject", course.Subject),
		slog.Int64("instructorID", course.InstructorID),
	)
	return course, nil
}

// List returns one page ordered by subject. A non-positive limit means the
// default; limits above MaxCourseLimit are clamped.
func (s *CourseService) List(ctx context.Context, limit, offset int) (*CoursePage, error) {
	if limit <= 0 {
		limit = DefaultCourseLimit
	}
	limit = min(limit, MaxCourseLimit)
	offset = max(offset, 0)

	courses, more, err := s.store.Courses().List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list courses", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return &CoursePage{Courses: courses, Limit: limit, Offset: offset, More: more}, nil
}

// Get returns apperror.ErrNotFound for an unknown id.
func (s *CourseService) Get(ctx context.Context, id int64) (*model.Course, error) {
	return s.store.Courses().GetByID(ctx, id)
}

// Patch is admin only. A missing course is reported as forbidden; a
// changed InstructorID must reference an instructor.
func (s *CourseService) Patch(ctx context.Context, sub string, id int64, patch model.CoursePatch) (*model.Course, error) {
	if _, err := s.authz.RequireRole(ctx, sub, model.RoleAdmin); err != nil {
		return nil, err
	}

	var course *model.Course
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		course, err = tx.Courses().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return courseForbidden(id)
			}
			return err
		}
		if patch.InstructorID != nil {
			if err := checkInstructor(ctx, tx.Users(), *patch.InstructorID); err != nil {
				return err
			}
		}
		patch.Apply(course)
		return tx.Courses().Update(ctx, course)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("course updated", slog.Int64("id", id))
	return course, nil
}

// Delete is admin only and cascades to the course's enrollment rows.
func (s *CourseService) Delete(ctx context.Context, sub string, id int64) error {
	if _, err := s.authz.RequireRole(ctx, sub, model.RoleAdmin); err != nil {
		return err
	}

	n, err := s.enrollments.CascadeDeleteCourse(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return courseForbidden(id)
		}
		s.logger.Error("failed to delete course",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting course %d: %w", id, err)
	}

	s.logger.Info("course deleted",
		slog.Int64("id", id),
		slog.Int64("enrollmentRemoved", n),
	)
	return nil
}

func checkInstructor(ctx context.Context, users repository.UserRepository, id int64) error {
	invalid := apperror.ValidationFailed("instructor_id",
		fmt.Sprintf("instructor_id %d does not reference an instructor", id))

	user, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return invalid
		}
		return fmt.Errorf("checking instructor %d: %w", id, err)
	}
	if user.Role != model.RoleInstructor {
		return invalid
	}
	return nil
}
