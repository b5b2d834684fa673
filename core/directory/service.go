package directory

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
)

var (
	// errors
	ErrLevelExists     = core.BadRequest("level already exists")
	ErrLevelNotFound   = core.NotFound("level not found")
	ErrGroupNotFound   = core.NotFound("group not found")
	ErrSubjectNotFound = core.NotFound("subject not found")
)

type (
	Repository interface {
		QueryLevels(ctx context.Context) ([]Level, error)
		// CreateLevel returns ErrLevelExists when the name is taken.
		CreateLevel(ctx context.Context, lvl Level) (Level, error)
		UpdateLevel(ctx context.Context, lvl Level) error
		DeleteLevels(ctx context.Context, ids ...int) error

		QueryGroups(ctx context.Context) ([]Group, error)
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		UpdateGroup(ctx context.Context, grp Group) error
		DeleteGroups(ctx context.Context, ids ...int) error

		QuerySubjects(ctx context.Context) ([]Subject, error)
		CreateSubject(ctx context.Context, sub Subject) (Subject, error)
		UpdateSubject(ctx context.Context, sub Subject) error
		DeleteSubjects(ctx context.Context, ids ...int) error

		QueryTeacherSubjects(ctx context.Context) ([]TeacherSubject, error)
		// ReplaceTeacherSubjects atomically swaps the teacher's subjects for subjectIDs.
		ReplaceTeacherSubjects(ctx context.Context, teacherID int, subjectIDs []int) error
		DeleteTeacherSubject(ctx context.Context, teacherID, subjectID int) error

		QueryTeacherGroups(ctx context.Context) ([]TeacherGroup, error)
		ReplaceTeacherGroups(ctx context.Context, teacherID int, groupIDs []int) error
		DeleteTeacherGroup(ctx context.Context, teacherID, groupID int) error

		QueryTeacherStudents(ctx context.Context) ([]TeacherStudent, error)
		ReplaceTeacherStudents(ctx context.Context, teacherID int, studentIDs []int) error

		QueryStudentTeacherLinks(ctx context.Context) ([]StudentTeacherLink, error)
		// LinkStudents adds missing links between teacherID and studentIDs.
		LinkStudents(ctx context.Context, teacherID int, studentIDs []int) error
		UnlinkStudent(ctx context.Context, studentID, teacherID int) error

		// AssignedGroups returns the groups of a teacher with their level names.
		AssignedGroups(ctx context.Context, teacherID int) ([]Group, error)
		GroupsStudents(ctx context.Context, groupIDs []int) ([]ScopeStudent, error)
		AssignedStudents(ctx context.Context, teacherID int) ([]ScopeStudent, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Levels

func (svc *Service) QueryLevels(ctx context.Context) ([]Level, error) {
	return svc.repo.QueryLevels(ctx)
}

func (svc *Service) CreateLevel(ctx context.Context, ld LevelData) (Level, error) {
	return svc.repo.CreateLevel(ctx, Level{Name: ld.Name})
}

func (svc *Service) UpdateLevel(ctx context.Context, id int, ld LevelData) error {
	return svc.repo.UpdateLevel(ctx, Level{ID: id, Name: ld.Name})
}

func (svc *Service) DeleteLevels(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteLevels(ctx, ids...)
}

// Groups

func (svc *Service) QueryGroups(ctx context.Context) ([]Group, error) {
	return svc.repo.QueryGroups(ctx)
}

func (svc *Service) CreateGroup(ctx context.Context, gd GroupData) (Group, error) {
	return svc.repo.CreateGroup(ctx, Group{Name: gd.Name, LevelID: gd.LevelID})
}

func (svc *Service) UpdateGroup(ctx context.Context, id int, gd GroupData) error {
	return svc.repo.UpdateGroup(ctx, Group{ID: id, Name: gd.Name, LevelID: gd.LevelID})
}

func (svc *Service) DeleteGroups(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteGroups(ctx, ids...)
}

// Subjects

func (svc *Service) QuerySubjects(ctx context.Context) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx)
}

func (svc *Service) CreateSubject(ctx context.Context, sd SubjectData) (Subject, error) {
	return svc.repo.CreateSubject(ctx, Subject{
		Name:        sd.Name,
		Description: null.NewString(sd.Description, sd.Description != ""),
	})
}

func (svc *Service) UpdateSubject(ctx context.Context, id int, sd SubjectData) error {
	return svc.repo.UpdateSubject(ctx, Subject{
		ID:          id,
		Name:        sd.Name,
		Description: null.NewString(sd.Description, sd.Description != ""),
	})
}

func (svc *Service) DeleteSubjects(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteSubjects(ctx, ids...)
}

// Assignments

func (svc *Service) QueryTeacherSubjects(ctx context.Context) ([]TeacherSubject, error) {
	return svc.repo.QueryTeacherSubjects(ctx)
}

func (svc *Service) ReplaceTeacherSubjects(ctx context.Context, ts TeacherSubjects) error {
	return svc.repo.ReplaceTeacherSubjects(ctx, ts.TeacherID, core.UniqueIDs(ts.SubjectIDs))
}

func (svc *Service) DeleteTeacherSubject(ctx context.Context, teacherID, subjectID int) error {
	return svc.repo.DeleteTeacherSubject(ctx, teacherID, subjectID)
}

func (svc *Service) QueryTeacherGroups(ctx context.Context) ([]TeacherGroup, error) {
	return svc.repo.QueryTeacherGroups(ctx)
}

func (svc *Service) ReplaceTeacherGroups(ctx context.Context, tg TeacherGroups) error {
	return svc.repo.ReplaceTeacherGroups(ctx, tg.TeacherID, core.UniqueIDs(tg.GroupIDs))
}

func (svc *Service) DeleteTeacherGroup(ctx context.Context, teacherID, groupID int) error {
	return svc.repo.DeleteTeacherGroup(ctx, teacherID, groupID)
}

func (svc *Service) QueryTeacherStudents(ctx context.Context) ([]TeacherStudent, error) {
	return svc.repo.QueryTeacherStudents(ctx)
}

func (svc *Service) ReplaceTeacherStudents(ctx context.Context, ts TeacherStudents) error {
	return svc.repo.ReplaceTeacherStudents(ctx, ts.TeacherID, core.UniqueIDs(ts.StudentIDs))
}

func (svc *Service) QueryLinks(ctx context.Context) ([]StudentTeacherLink, error) {
	return svc.repo.QueryStudentTeacherLinks(ctx)
}

func (svc *Service) LinkStudents(ctx context.Context, ts TeacherStudents) error {
	if len(ts.StudentIDs) == 0 {
		return nil
	}
	return svc.repo.LinkStudents(ctx, ts.TeacherID, core.UniqueIDs(ts.StudentIDs))
}

func (svc *Service) Unlink(ctx context.Context, l Link) error {
	return svc.repo.UnlinkStudent(ctx, l.StudentID, l.TeacherID)
}

// TeacherScope returns the groups of a teacher, the distinct levels of these groups
// and the students of these groups plus the individually assigned ones, without duplicates.
func (svc *Service) TeacherScope(ctx context.Context, teacherID int) (Scope, error) {
	groups, err := svc.repo.AssignedGroups(ctx, teacherID)
	if err != nil {
		return Scope{}, errors.Wrap(err, "querying teacher groups")
	}

	scope := Scope{
		Levels:   make([]Level, 0),
		Groups:   make([]Group, 0, len(groups)),
		Students: make([]ScopeStudent, 0),
	}
	seenLevels := make(map[int]struct{})
	groupIDs := make([]int, 0, len(groups))
	for _, grp := range groups {
		scope.Groups = append(scope.Groups, grp)
		groupIDs = append(groupIDs, grp.ID)
		if !grp.LevelID.Valid {
			continue
		}
		if _, ok := seenLevels[grp.LevelID.Int]; !ok {
			seenLevels[grp.LevelID.Int] = struct{}{}
			scope.Levels = append(scope.Levels, Level{ID: grp.LevelID.Int, Name: grp.LevelName.String})
		}
	}

	if len(groupIDs) > 0 {
		groupStudents, err := svc.repo.GroupsStudents(ctx, groupIDs)
		if err != nil {
			return Scope{}, errors.Wrap(err, "querying group students")
		}
		scope.Students = append(scope.Students, groupStudents...)
	}

	individuals, err := svc.repo.AssignedStudents(ctx, teacherID)
	if err != nil {
		return Scope{}, errors.Wrap(err, "querying assigned students")
	}
	seen := make(map[int]struct{}, len(scope.Students))
	for _, s := range scope.Students {
		seen[s.ID] = struct{}{}
	}
	for _, s := range individuals {
		if _, ok := seen[s.ID]; !ok {
			seen[s.ID] = struct{}{}
			scope.Students = append(scope.Students, s)
		}
	}
	return scope, nil
}
