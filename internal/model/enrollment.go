package model

// Enrollment links a student to a course. At most one row exists per
// (StudentID, CourseID) pair; the enrollment service enforces this.
type Enrollment struct {
	ID        int64 `json:"id"`
	StudentID int64 `json:"student_id"`
	CourseID  int64 `json:"course_id"`
}
