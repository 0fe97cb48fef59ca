package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/repository"
)

var _ repository.CourseRepository = (*CourseDB)(nil)

const courseColumns = `id, subject, number, title, term, instructor_id`

// CourseDB reads and writes the courses collection.
type CourseDB struct {
	q querier
}

// Create inserts a course and sets course.ID to the assigned id.
func (c *CourseDB) Create(ctx context.Context, course *model.Course) error {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO courses (subject, number, title, term, instructor_id)
		 VALUES (?, ?, ?, ?, ?)`,
		course.Subject, course.Number, course.Title, course.Term, course.InstructorID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting course: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading course id: %w", err)
	}
	course.ID = id
	return nil
}

func (c *CourseDB) GetByID(ctx context.Context, id int64) (*model.Course, error) {
	var course model.Course
	err := c.q.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = ?`, id,
	).Scan(&course.ID, &course.Subject, &course.Number, &course.Title, &course.Term, &course.InstructorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("course", id)
		}
		return nil, fmt.Errorf("sqlite: getting course %d: %w", id, err)
	}
	return &course, nil
}

// List reads one page ordered by subject. One extra row is fetched to learn
// whether a further page exists; it is not returned.
func (c *CourseDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Course, bool, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(opts.Offset, 0)

	courses, err := c.query(ctx,
		`SELECT `+courseColumns+` FROM courses ORDER BY subject, id LIMIT ? OFFSET ?`,
		limit+1, offset,
	)
	if err != nil {
		return nil, false, err
	}

	more := len(courses) > limit
	if more {
		courses = courses[:limit]
	}
	return courses, more, nil
}

func (c *CourseDB) ListByInstructor(ctx context.Context, instructorID int64) ([]model.Course, error) {
	return c.query(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE instructor_id = ? ORDER BY id`, instructorID)
}

// Update overwrites every mutable field of the course.
func (c *CourseDB) Update(ctx context.Context, course *model.Course) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE courses
		 SET subject = ?, number = ?, title = ?, term = ?, instructor_id = ?
		 WHERE id = ?`,
		course.Subject, course.Number, course.Title, course.Term, course.InstructorID, course.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating course %d: %w", course.ID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("course", course.ID)
	}
	return nil
}

func (c *CourseDB) Delete(ctx context.Context, id int64) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting course %d: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("course", id)
	}
	return nil
}

func (c *CourseDB) query(ctx context.Context, query string, args ...any) ([]model.Course, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying courses: %w", err)
	}
	defer rows.Close()

	courses := []model.Course{}
	for rows.Next() {
		var course model.Course
		if err := rows.Scan(
			&course.ID, &course.Subject, &course.Number,
			&course.Title, &course.Term, &course.InstructorID,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning course row: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating courses: %w", err)
	}
	return courses, nil
}
