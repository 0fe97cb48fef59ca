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

// EnrollmentService keeps the enrollment collection consistent with users
// and courses. Batch updates and course deletion each run in one
// transaction.
type EnrollmentService struct {
	store  repository.Store
	authz  *Authorizer
	logger *slog.Logger
}

func NewEnrollmentService(store repository.Store, authz *Authorizer, logger *slog.Logger) *EnrollmentService {
	return &EnrollmentService{store: store, authz: authz, logger: logger}
}

// ValidateBatch rejects the batch with apperror.ErrConflict if an id is in
// both sets or any id is not a student.
func (s *EnrollmentService) ValidateBatch(ctx context.Context, add, remove []int64) error {
	return validateBatch(ctx, s.store.Users(), add, remove)
}

// ApplyBatch enrolls every id in add that is not yet enrolled and unenrolls
// every id in remove that is. The batch must already be valid.
func (s *EnrollmentService) ApplyBatch(ctx context.Context, courseID int64, add, remove []int64) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		_, _, err := applyBatch(ctx, tx.Enrollments(), courseID, add, remove)
		return err
	})
}

// UpdateEnrollment is the full gated operation behind
// PATCH /courses/{id}/students. The gate runs inside the same transaction
// as the writes, so a course deleted concurrently is never written to.
func (s *EnrollmentService) UpdateEnrollment(ctx context.Context, sub string, courseID int64, add, remove []int64) error {
	var (
		actor          *model.User
		added, removed int
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if actor, _, err = s.authz.authorizeCourseManagerIn(ctx, tx, sub, courseID); err != nil {
			return err
		}
		if err := validateBatch(ctx, tx.Users(), add, remove); err != nil {
			return err
		}
		added, removed, err = applyBatch(ctx, tx.Enrollments(), courseID, add, remove)
		return err
	})
	if err != nil {
		if !isClientError(err) {
			s.logger.Error("failed to update enrollment",
				slog.Int64("courseID", courseID),
				slog.String("error", err.Error()),
			)
		}
		return err
	}

	s.logger.Info("enrollment updated",
		slog.Int64("courseID", courseID),
		slog.Int64("actorID", actor.ID),
		slog.Int("added", added),
		slog.Int("removed", removed),
	)
	return nil
}

// isClientError reports whether err is one of the apperror kinds caused by
// the request rather than by the store.
func isClientError(err error) bool {
	for _, target := range []error{
		apperror.ErrValidation,
		apperror.ErrConflict,
		apperror.ErrForbidden,
		apperror.ErrUnauthenticated,
		apperror.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ListStudents returns the ids of the students enrolled in the course.
func (s *EnrollmentService) ListStudents(ctx context.Context, sub string, courseID int64) ([]int64, error) {
	if _, _, err := s.authz.AuthorizeCourseManager(ctx, sub, courseID); err != nil {
		return nil, err
	}

	rows, err := s.store.Enrollments().ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing enrollment for course %d: %w", courseID, err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.StudentID)
	}
	return ids, nil
}

// CascadeDeleteCourse deletes the course and every enrollment row that
// references it, atomically. It returns apperror.ErrNotFound (and deletes
// nothing) if the course does not exist.
func (s *EnrollmentService) CascadeDeleteCourse(ctx context.Context, courseID int64) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if n, err = tx.Enrollments().DeleteByCourse(ctx, courseID); err != nil {
			return err
		}
		return tx.Courses().Delete(ctx, courseID)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func validateBatch(ctx context.Context, users repository.UserRepository, add, remove []int64) error {
	inAdd := make(map[int64]struct{}, len(add))
	for _, id := range add {
		inAdd[id] = struct{}{}
	}
	for _, id := range remove {
		if _, ok := inAdd[id]; ok {
			return apperror.Conflict("enrollment", fmt.Sprintf("user %d is in both add and remove", id))
		}
	}

	checked := make(map[int64]struct{}, len(add)+len(remove))
	for _, ids := range [][]int64{add, remove} {
		for _, id := range ids {
			if _, ok := checked[id]; ok {
				continue
			}
			checked[id] = struct{}{}

			user, err := users.GetByID(ctx, id)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					return apperror.Conflict("enrollment", fmt.Sprintf("user %d does not exist", id))
				}
				return fmt.Errorf("checking user %d: %w", id, err)
			}
			if user.Role != model.RoleStudent {
				return apperror.Conflict("enrollment", fmt.Sprintf("user %d is not a student", id))
			}
		}
	}
	return nil
}

func applyBatch(ctx context.Context, enrollments repository.EnrollmentRepository, courseID int64, add, remove []int64) (added, removed int, err error) {
	for _, id := range add {
		rows, err := enrollments.Find(ctx, id, courseID)
		if err != nil {
			return added, removed, err
		}
		if len(rows) > 0 {
			continue
		}
		if err := enrollments.Create(ctx, &model.Enrollment{StudentID: id, CourseID: courseID}); err != nil {
			return added, removed, err
		}
		added++
	}

	for _, id := range remove {
		rows, err := enrollments.Find(ctx, id, courseID)
		if err != nil {
			return added, removed, err
		}
		for _, row := range rows {
			if err := enrollments.Delete(ctx, row.ID); err != nil {
				return added, removed, err
			}
		}
		if len(rows) > 0 {
			removed++
		}
	}
	return added, removed, nil
}
