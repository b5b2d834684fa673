package lesson

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/notification"
)

var (
	// errors
	ErrNoFile   = core.BadRequest("No file")
	ErrNotFound = core.NotFound("lesson not found")
	ErrNotOwner = core.Forbidden("Unauthorized")
)

var nowFunc = time.Now // mockable

type (
	Lesson struct {
		ID             int         `db:"id" json:"id"`
		TeacherID      int         `db:"teacher_id" json:"teacher_id"`
		SubjectID      null.Int    `db:"subject_id" json:"subject_id"`
		Title          string      `db:"title" json:"title"`
		Description    null.String `db:"description" json:"description"`
		FilePath       null.String `db:"file_path" json:"file_path"`
		TargetAll      bool        `db:"target_all" json:"target_all"`
		TargetLevels   core.IDList `db:"-" json:"target_levels"`
		TargetGroups   core.IDList `db:"-" json:"target_groups"`
		TargetStudents core.IDList `db:"-" json:"target_students"`
		CreatedAt      time.Time   `db:"created_at" json:"created_at"`
		TeacherName    null.String `db:"teacher_name" json:"teacher_name"`
		TeacherType    null.String `db:"teacher_type" json:"teacher_type"`
		SubjectName    null.String `db:"subject_name" json:"subject_name"`
	}

	// Target selects the audience of a lesson: every student, or the students matching any of the lists.
	Target struct {
		All      bool
		Levels   []int
		Groups   []int
		Students []int
	}

	// Viewer is a student looking for its lessons.
	Viewer struct {
		UserID  int
		GroupID int
		LevelID int
	}

	NewLesson struct {
		TeacherID   int      `json:"teacher_id" validate:"required"`
		SubjectID   null.Int `json:"subject_id"`
		Title       string   `json:"title" validate:"required"`
		Description string   `json:"description"`
		FilePath    string   `json:"-"`
		Target      Target   `json:"-"`
	}

	Repository interface {
		// CreateLesson stores a lesson with its targets, atomically.
		CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
		// QueryLessons returns lessons newest first; teacherID > 0 restricts them to that teacher.
		QueryLessons(ctx context.Context, teacherID int) ([]Lesson, error)
		DeleteLessons(ctx context.Context, ids ...int) error
		// TargetedStudents returns the ids of the students matching t.
		TargetedStudents(ctx context.Context, t Target) ([]int, error)
	}

	Notifier interface {
		Notify(ctx context.Context, nns ...notification.NewNotification) error
	}

	Service struct {
		repo     Repository
		notifier Notifier
	}
)

// Normalize drops duplicates and clears the lists of a target-all audience.
func (t Target) Normalize() Target {
	if t.All {
		return Target{All: true}
	}
	return Target{
		Levels:   core.UniqueIDs(t.Levels),
		Groups:   core.UniqueIDs(t.Groups),
		Students: core.UniqueIDs(t.Students),
	}
}

// IsEmpty reports whether t selects nobody.
func (t Target) IsEmpty() bool {
	return !t.All && len(t.Levels) == 0 && len(t.Groups) == 0 && len(t.Students) == 0
}

// VisibleTo reports whether l targets v. Zero GroupID/LevelID match nothing.
func (l Lesson) VisibleTo(v Viewer) bool {
	if l.TargetAll {
		return true
	}
	if l.TargetStudents.Contains(v.UserID) {
		return true
	}
	if v.GroupID != 0 && l.TargetGroups.Contains(v.GroupID) {
		return true
	}
	return v.LevelID != 0 && l.TargetLevels.Contains(v.LevelID)
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	return validate.Struct(nl)
}

func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// Create stores a lesson and notifies the students it targets.
// A lesson targeting nobody is stored without notifying anyone.
func (svc *Service) Create(ctx context.Context, nl NewLesson) (Lesson, error) {
	if nl.FilePath == "" {
		return Lesson{}, ErrNoFile
	}
	target := nl.Target.Normalize()

	l, err := svc.repo.CreateLesson(ctx, Lesson{
		TeacherID:      nl.TeacherID,
		SubjectID:      nl.SubjectID,
		Title:          nl.Title,
		Description:    null.NewString(nl.Description, nl.Description != ""),
		FilePath:       null.StringFrom(nl.FilePath),
		TargetAll:      target.All,
		TargetLevels:   target.Levels,
		TargetGroups:   target.Groups,
		TargetStudents: target.Students,
		CreatedAt:      nowFunc().UTC(),
	})
	if err != nil {
		return Lesson{}, errors.Wrap(err, "creating lesson")
	}

	if target.IsEmpty() {
		return l, nil
	}
	studentIDs, err := svc.repo.TargetedStudents(ctx, target)
	if err != nil {
		return l, errors.Wrap(err, "querying targeted students")
	}
	msg := fmt.Sprintf("درس جديد: %s", l.Title)
	link := "/api/lessons/files/" + nl.FilePath
	nns := make([]notification.NewNotification, 0, len(studentIDs))
	for _, sid := range studentIDs {
		nns = append(nns, notification.NewNotification{UserID: sid, Message: msg, Link: link})
	}
	return l, errors.Wrap(svc.notifier.Notify(ctx, nns...), "notifying students")
}

// List returns every lesson, newest first, or only the ones visible to viewer when given.
func (svc *Service) List(ctx context.Context, viewer *Viewer) ([]Lesson, error) {
	lessons, err := svc.repo.QueryLessons(ctx, 0)
	if err != nil || viewer == nil {
		return lessons, err
	}
	visible := make([]Lesson, 0, len(lessons))
	for _, l := range lessons {
		if l.VisibleTo(*viewer) {
			visible = append(visible, l)
		}
	}
	return visible, nil
}

func (svc *Service) ListByTeacher(ctx context.Context, teacherID int) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, teacherID)
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteLessons(ctx, ids...)
}

// DeleteOwn deletes a lesson published by teacherID.
func (svc *Service) DeleteOwn(ctx context.Context, teacherID, id int) error {
	lessons, err := svc.repo.QueryLessons(ctx, 0)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	for _, l := range lessons {
		if l.ID != id {
			continue
		}
		if l.TeacherID != teacherID {
			return ErrNotOwner
		}
		return svc.repo.DeleteLessons(ctx, id)
	}
	return ErrNotFound
}
