package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/repository"
)

// memStore is an in-memory repository.Store. WithTx snapshots every map and
// restores the snapshot when fn fails, which is all the rollback the tests
// need.
type memStore struct {
	users       map[int64]model.User
	courses     map[int64]model.Course
	enrollments map[int64]model.Enrollment
	nextID      int64

	// set to simulate a store failure
	findBySubErr      error
	deleteCourseErr   error
	createEnrollErr   error
	deleteByCourseErr error
	setAvatarErr      error

	txCount int
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:       map[int64]model.User{},
		courses:     map[int64]model.Course{},
		enrollments: map[int64]model.Enrollment{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Users() repository.UserRepository             { return memUsers{m} }
func (m *memStore) Courses() repository.CourseRepository         { return memCourses{m} }
func (m *memStore) Enrollments() repository.EnrollmentRepository { return memEnrollments{m} }

func (m *memStore) WithTx(_ context.Context, fn func(tx repository.Store) error) error {
	m.txCount++
	users, courses, enrollments := maps.Clone(m.users), maps.Clone(m.courses), maps.Clone(m.enrollments)
	if err := fn(m); err != nil {
		m.users, m.courses, m.enrollments = users, courses, enrollments
		return err
	}
	return nil
}

// addUser inserts a user directly and returns its id.
func (m *memStore) addUser(sub string, role model.Role) int64 {
	u := model.User{ID: m.id(), Sub: sub, Role: role}
	m.users[u.ID] = u
	return u.ID
}

func (m *memStore) addCourse(subject string, instructorID int64) int64 {
	c := model.Course{ID: m.id(), Subject: subject, Number: 101, Title: subject, Term: "F24", InstructorID: instructorID}
	m.courses[c.ID] = c
	return c.ID
}

func (m *memStore) enroll(studentID, courseID int64) {
	e := model.Enrollment{ID: m.id(), StudentID: studentID, CourseID: courseID}
	m.enrollments[e.ID] = e
}

// enrolled returns the sorted student ids with a row for courseID,
// duplicates included.
func (m *memStore) enrolled(courseID int64) []int64 {
	var ids []int64
	for _, e := range m.enrollments {
		if e.CourseID == courseID {
			ids = append(ids, e.StudentID)
		}
	}
	slices.Sort(ids)
	return ids
}

type memUsers struct{ m *memStore }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	u.ID = r.m.id()
	r.m.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := r.m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (r memUsers) FindBySub(_ context.Context, sub string) ([]model.User, error) {
	if r.m.findBySubErr != nil {
		return nil, r.m.findBySubErr
	}
	var out []model.User
	for _, id := range slices.Sorted(maps.Keys(r.m.users)) {
		if u := r.m.users[id]; u.Sub == sub {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r memUsers) List(context.Context) ([]model.User, error) {
	var out []model.User
	for _, id := range slices.Sorted(maps.Keys(r.m.users)) {
		out = append(out, r.m.users[id])
	}
	return out, nil
}

func (r memUsers) SetAvatar(_ context.Context, id int64, avatar string) error {
	if r.m.setAvatarErr != nil {
		return r.m.setAvatarErr
	}
	u, ok := r.m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Avatar = avatar
	r.m.users[id] = u
	return nil
}

type memCourses struct{ m *memStore }

func (r memCourses) Create(_ context.Context, c *model.Course) error {
	c.ID = r.m.id()
	r.m.courses[c.ID] = *c
	return nil
}

func (r memCourses) GetByID(_ context.Context, id int64) (*model.Course, error) {
	c, ok := r.m.courses[id]
	if !ok {
		return nil, apperror.NotFound("course", id)
	}
	return &c, nil
}

func (r memCourses) List(_ context.Context, opts repository.ListOptions) ([]model.Course, bool, error) {
	all := slices.SortedFunc(maps.Values(r.m.courses), func(a, b model.Course) int {
		if a.Subject != b.Subject {
			if a.Subject < b.Subject {
				return -1
			}
			return 1
		}
		return int(a.ID - b.ID)
	})
	if opts.Offset >= len(all) {
		return []model.Course{}, false, nil
	}
	all = all[opts.Offset:]
	if len(all) > opts.Limit {
		return all[:opts.Limit], true, nil
	}
	return all, false, nil
}

func (r memCourses) ListByInstructor(_ context.Context, instructorID int64) ([]model.Course, error) {
	var out []model.Course
	for _, id := range slices.Sorted(maps.Keys(r.m.courses)) {
		if c := r.m.courses[id]; c.InstructorID == instructorID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r memCourses) Update(_ context.Context, c *model.Course) error {
	if _, ok := r.m.courses[c.ID]; !ok {
		return apperror.NotFound("course", c.ID)
	}
	r.m.courses[c.ID] = *c
	return nil
}

func (r memCourses) Delete(_ context.Context, id int64) error {
	if r.m.deleteCourseErr != nil {
		return r.m.deleteCourseErr
	}
	if _, ok := r.m.courses[id]; !ok {
		return apperror.NotFound("course", id)
	}
	delete(r.m.courses, id)
	return nil
}

type memEnrollments struct{ m *memStore }

func (r memEnrollments) Create(_ context.Context, e *model.Enrollment) error {
	if r.m.createEnrollErr != nil {
		return r.m.createEnrollErr
	}
	e.ID = r.m.id()
	r.m.enrollments[e.ID] = *e
	return nil
}

func (r memEnrollments) filter(keep func(model.Enrollment) bool) []model.Enrollment {
	var out []model.Enrollment
	for _, id := range slices.Sorted(maps.Keys(r.m.enrollments)) {
		if e := r.m.enrollments[id]; keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (r memEnrollments) Find(_ context.Context, studentID, courseID int64) ([]model.Enrollment, error) {
	return r.filter(func(e model.Enrollment) bool {
		return e.StudentID == studentID && e.CourseID == courseID
	}), nil
}

func (r memEnrollments) ListByCourse(_ context.Context, courseID int64) ([]model.Enrollment, error) {
	return r.filter(func(e model.Enrollment) bool { return e.CourseID == courseID }), nil
}

func (r memEnrollments) ListByStudent(_ context.Context, studentID int64) ([]model.Enrollment, error) {
	return r.filter(func(e model.Enrollment) bool { return e.StudentID == studentID }), nil
}

func (r memEnrollments) Delete(_ context.Context, id int64) error {
	if _, ok := r.m.enrollments[id]; !ok {
		return apperror.NotFound("enrollment", id)
	}
	delete(r.m.enrollments, id)
	return nil
}

func (r memEnrollments) DeleteByCourse(_ context.Context, courseID int64) (int64, error) {
	if r.m.deleteByCourseErr != nil {
		return 0, r.m.deleteByCourseErr
	}
	var n int64
	for id, e := range r.m.enrollments {
		if e.CourseID == courseID {
			delete(r.m.enrollments, id)
			n++
		}
	}
	return n, nil
}

// memAvatars is an in-memory AvatarStore.
type memAvatars struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemAvatars() *memAvatars {
	return &memAvatars{blobs: map[string][]byte{}}
}

func (a *memAvatars) Put(_ context.Context, name string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blobs[name] = b
	return nil
}

func (a *memAvatars) Open(_ context.Context, name string) (io.ReadCloser, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.blobs[name]
	if !ok {
		return nil, "", apperror.NotFound("avatar", name)
	}
	return io.NopCloser(bytes.NewReader(b)), http.DetectContentType(b), nil
}

func (a *memAvatars) Delete(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.blobs[name]; !ok {
		return apperror.NotFound("avatar", name)
	}
	delete(a.blobs, name)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixture is a store seeded with one user per role plus a second
// instructor and student, and the services built on it.
type fixture struct {
	store       *memStore
	avatars     *memAvatars
	authz       *Authorizer
	enrollments *EnrollmentService
	courses     *CourseService
	users       *UserService

	admin, instructor, otherInstructor, student, otherStudent int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	logger := testLogger()

	f := &fixture{store: store, avatars: newMemAvatars()}
	f.admin = store.addUser("sub-admin", model.RoleAdmin)
	f.instructor = store.addUser("sub-instructor", model.RoleInstructor)
	f.otherInstructor = store.addUser("sub-instructor-2", model.RoleInstructor)
	f.student = store.addUser("sub-student", model.RoleStudent)
	f.otherStudent = store.addUser("sub-student-2", model.RoleStudent)

	f.authz = NewAuthorizer(store, logger)
	f.enrollments = NewEnrollmentService(store, f.authz, logger)
	f.courses = NewCourseService(store, f.authz, f.enrollments, logger)
	f.users = NewUserService(store, f.authz, f.avatars, logger)
	return f
}
