package directory

import (
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
)

type (
	Level struct {
		ID   int    `db:"id" json:"id"`
		Name string `db:"name" json:"name"`
	}

	// Group is a cohort within a Level.
	Group struct {
		ID        int         `db:"id" json:"id"`
		Name      string      `db:"name" json:"name"`
		LevelID   null.Int    `db:"level_id" json:"level_id"`
		LevelName null.String `db:"level_name" json:"level_name"`
	}

	Subject struct {
		ID          int         `db:"id" json:"id"`
		Name        string      `db:"name" json:"name"`
		Description null.String `db:"description" json:"description"`
	}

	TeacherSubject struct {
		TeacherID   int    `db:"teacher_id" json:"teacher_id"`
		SubjectID   int    `db:"subject_id" json:"subject_id"`
		TeacherName string `db:"teacher_name" json:"teacher_name"`
		SubjectName string `db:"subject_name" json:"subject_name"`
	}

	TeacherGroup struct {
		TeacherID   int         `db:"teacher_id" json:"teacher_id"`
		GroupID     int         `db:"group_id" json:"group_id"`
		TeacherName string      `db:"teacher_name" json:"teacher_name"`
		GroupName   string      `db:"group_name" json:"group_name"`
		LevelName   null.String `db:"level_name" json:"level_name"`
	}

	// TeacherStudent is an individual teaching assignment.
	TeacherStudent struct {
		TeacherID   int         `db:"teacher_id" json:"teacher_id"`
		StudentID   int         `db:"student_id" json:"student_id"`
		StudentName string      `db:"student_name" json:"student_name"`
		LevelID     null.Int    `db:"level_id" json:"level_id"`
		GroupID     null.Int    `db:"group_id" json:"group_id"`
		LevelName   null.String `db:"level_name" json:"level_name"`
		GroupName   null.String `db:"group_name" json:"group_name"`
	}

	// StudentTeacherLink makes a student and a teacher chat contacts.
	StudentTeacherLink struct {
		StudentID   int    `db:"student_id" json:"student_id"`
		TeacherID   int    `db:"teacher_id" json:"teacher_id"`
		StudentName string `db:"student_name" json:"student_name"`
		TeacherName string `db:"teacher_name" json:"teacher_name"`
	}

	ScopeStudent struct {
		ID                 int         `db:"id" json:"id"`
		Name               string      `db:"name" json:"name"`
		LevelID            null.Int    `db:"level_id" json:"level_id"`
		GroupID            null.Int    `db:"group_id" json:"group_id"`
		RegistrationNumber null.String `db:"registration_number" json:"registration_number"`
		LevelName          null.String `db:"level_name" json:"level_name"`
		GroupName          null.String `db:"group_name" json:"group_name"`
	}

	// Scope is what a teacher can reach: its groups, the levels of those groups
	// and the students of those groups plus the ones individually assigned.
	Scope struct {
		Levels   []Level        `json:"levels"`
		Groups   []Group        `json:"groups"`
		Students []ScopeStudent `json:"students"`
	}
)

type (
	LevelData struct {
		Name string `json:"name" validate:"required"`
	}

	GroupData struct {
		Name    string   `json:"name" validate:"required"`
		LevelID null.Int `json:"level_id"`
	}

	SubjectData struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
	}

	TeacherSubjects struct {
		TeacherID  int   `json:"teacher_id" validate:"required"`
		SubjectIDs []int `json:"subject_ids"`
	}

	TeacherGroups struct {
		TeacherID int   `json:"teacher_id" validate:"required"`
		GroupIDs  []int `json:"group_ids"`
	}

	TeacherStudents struct {
		TeacherID  int   `json:"teacher_id" validate:"required"`
		StudentIDs []int `json:"student_ids"`
	}

	Link struct {
		StudentID int `json:"student_id" validate:"required"`
		TeacherID int `json:"teacher_id" validate:"required"`
	}
)

func (ld *LevelData) Validate(validate *validator.Validate) error {
	ld.Name = core.CleanString(ld.Name)
	return validate.Struct(ld)
}

func (gd *GroupData) Validate(validate *validator.Validate) error {
	gd.Name = core.CleanString(gd.Name)
	return validate.Struct(gd)
}

func (sd *SubjectData) Validate(validate *validator.Validate) error {
	sd.Name = core.CleanString(sd.Name)
	sd.Description = core.CleanString(sd.Description)
	return validate.Struct(sd)
}

func (ts *TeacherSubjects) Validate(validate *validator.Validate) error {
	ts.SubjectIDs = core.UniqueIDs(ts.SubjectIDs)
	return validate.Struct(ts)
}

func (tg *TeacherGroups) Validate(validate *validator.Validate) error {
	tg.GroupIDs = core.UniqueIDs(tg.GroupIDs)
	return validate.Struct(tg)
}

func (ts *TeacherStudents) Validate(validate *validator.Validate) error {
	ts.StudentIDs = core.UniqueIDs(ts.StudentIDs)
	return validate.Struct(ts)
}

func (l *Link) Validate(validate *validator.Validate) error {
	return validate.Struct(l)
}
