package model

// Course is taught by exactly one instructor. InstructorID must reference a
// user whose role is instructor at the time the course is written.
type Course struct {
	ID           int64  `json:"id"`
	Subject      string `json:"subject"`
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Term         string `json:"term"`
	InstructorID int64  `json:"instructor_id"`
}

// CoursePatch carries a partial update. Nil fields are left unchanged.
type CoursePatch struct {
	Subject      *string
	Number       *int
	Title        *string
	Term         *string
	InstructorID *int64
}

// Apply copies every non-nil field of p onto c.
func (p CoursePatch) Apply(c *Course) {
	if p.Subject != nil {
		c.Subject = *p.Subject
	}
	if p.Number != nil {
		c.Number = *p.Number
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Term != nil {
		c.Term = *p.Term
	}
	if p.InstructorID != nil {
		c.InstructorID = *p.InstructorID
	}
}
