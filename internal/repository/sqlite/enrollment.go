package sqlite

import (
	"context"
	"fmt"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/repository"
)

var _ repository.EnrollmentRepository = (*EnrollmentDB)(nil)

// EnrollmentDB reads and writes the enrollment collection. It does not
// prevent duplicate (student, course) rows; callers check with Find first.
type EnrollmentDB struct {
	q querier
}

func (e *EnrollmentDB) Create(ctx context.Context, enrollment *model.Enrollment) error {
	res, err := e.q.ExecContext(ctx,
		`INSERT INTO enrollment (student_id, course_id) VALUES (?, ?)`,
		enrollment.StudentID, enrollment.CourseID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting enrollment (student=%d, course=%d): %w",
			enrollment.StudentID, enrollment.CourseID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading enrollment id: %w", err)
	}
	enrollment.ID = id
	return nil
}

// Find returns the rows linking studentID to courseID (normally zero or one).
func (e *EnrollmentDB) Find(ctx context.Context, studentID, courseID int64) ([]model.Enrollment, error) {
	return e.query(ctx,
		`SELECT id, student_id, course_id FROM enrollment
		 WHERE student_id = ? AND course_id = ? ORDER BY id`,
		studentID, courseID)
}

func (e *EnrollmentDB) ListByCourse(ctx context.Context, courseID int64) ([]model.Enrollment, error) {
	return e.query(ctx,
		`SELECT id, student_id, course_id FROM enrollment WHERE course_id = ? ORDER BY id`, courseID)
}

func (e *EnrollmentDB) ListByStudent(ctx context.Context, studentID int64) ([]model.Enrollment, error) {
	return e.query(ctx,
		`SELECT id, student_id, course_id FROM enrollment WHERE student_id = ? ORDER BY id`, studentID)
}

func (e *EnrollmentDB) Delete(ctx context.Context, id int64) error {
	res, err := e.q.ExecContext(ctx, `DELETE FROM enrollment WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting enrollment %d: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("enrollment", id)
	}
	return nil
}

// DeleteByCourse removes every row for courseID and reports how many went.
func (e *EnrollmentDB) DeleteByCourse(ctx context.Context, courseID int64) (int64, error) {
	res, err := e.q.ExecContext(ctx, `DELETE FROM enrollment WHERE course_id = ?`, courseID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting enrollment for course %d: %w", courseID, err)
	}
	return rowsAffected(res)
}

func (e *EnrollmentDB) query(ctx context.Context, query string, args ...any) ([]model.Enrollment, error) {
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying enrollment: %w", err)
	}
	defer rows.Close()

	enrollments := []model.Enrollment{}
	for rows.Next() {
		var en model.Enrollment
		if err := rows.Scan(&en.ID, &en.StudentID, &en.CourseID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning enrollment row: %w", err)
		}
		enrollments = append(enrollments, en)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating enrollment: %w", err)
	}
	return enrollments, nil
}
