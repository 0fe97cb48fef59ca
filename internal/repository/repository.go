// Package repository declares the storage interfaces consumed by the
// service layer. Implementations live in subpackages (see sqlite).
package repository

import (
	"context"

	"github.com/josquinlarsen/tarpaulin/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// FindBySub returns every user whose sub matches. The caller decides
	// what zero or several matches mean.
	FindBySub(ctx context.Context, sub string) ([]model.User, error)
	List(ctx context.Context) ([]model.User, error)
	SetAvatar(ctx context.Context, id int64, avatar string) error
}

type CourseRepository interface {
	Create(ctx context.Context, course *model.Course) error
	GetByID(ctx context.Context, id int64) (*model.Course, error)
	// List returns one page ordered by subject and reports whether another
	// page follows it.
	List(ctx context.Context, opts ListOptions) (courses []model.Course, more bool, err error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]model.Course, error)
	Update(ctx context.Context, course *model.Course) error
	Delete(ctx context.Context, id int64) error
}

type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *model.Enrollment) error
	Find(ctx context.Context, studentID, courseID int64) ([]model.Enrollment, error)
	ListByCourse(ctx context.Context, courseID int64) ([]model.Enrollment, error)
	ListByStudent(ctx context.Context, studentID int64) ([]model.Enrollment, error)
	Delete(ctx context.Context, id int64) error
	DeleteByCourse(ctx context.Context, courseID int64) (int64, error)
}

// Store groups the three collections. WithTx runs fn against a Store whose
// repositories all share one transaction; it commits when fn returns nil
// and rolls back otherwise. fn must not use the outer Store.
type Store interface {
	Users() UserRepository
	Courses() CourseRepository
	Enrollments() EnrollmentRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
