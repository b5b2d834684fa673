package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/storage/database"
)

const groupQuery = `SELECT g.id, g.name, g.level_id, l.name AS level_name
	FROM class_groups g LEFT JOIN levels l ON l.id = g.level_id`

const scopeStudentColumns = `u.id, u.name, u.level_id, u.group_id, u.registration_number,
	l.name AS level_name, g.name AS group_name`

type directoryRepository struct {
	db *sqlx.DB
}

var _ directory.Repository = (*directoryRepository)(nil) // interface compliance check

func NewDirectoryRepository(db *sqlx.DB) *directoryRepository {
	return &directoryRepository{db: db}
}

// Levels

func (repo *directoryRepository) QueryLevels(ctx context.Context) ([]directory.Level, error) {
	levels := make([]directory.Level, 0)
	err := repo.db.SelectContext(ctx, &levels, `SELECT id, name FROM levels ORDER BY name, id`)
	return levels, errors.Wrap(err, "querying levels")
}

func (repo *directoryRepository) CreateLevel(ctx context.Context, lvl directory.Level) (directory.Level, error) {
	err := repo.db.GetContext(ctx, &lvl.ID, `INSERT INTO levels (name) VALUES ($1) RETURNING id`, lvl.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return directory.Level{}, directory.ErrLevelExists
		}
		return directory.Level{}, errors.Wrap(err, "inserting level")
	}
	return lvl, nil
}

func (repo *directoryRepository) UpdateLevel(ctx context.Context, lvl directory.Level) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE levels SET name = $1 WHERE id = $2`, lvl.Name, lvl.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return directory.ErrLevelExists
		}
		return errors.Wrap(err, "updating level")
	}
	return checkAffected(res, directory.ErrLevelNotFound)
}

func (repo *directoryRepository) DeleteLevels(ctx context.Context, ids ...int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM levels WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting levels")
}

// Groups

func (repo *directoryRepository) QueryGroups(ctx context.Context) ([]directory.Group, error) {
	groups := make([]directory.Group, 0)
	err := repo.db.SelectContext(ctx, &groups, groupQuery+` ORDER BY g.name, g.id`)
	return groups, errors.Wrap(err, "querying groups")
}

func (repo *directoryRepository) levelExists(ctx context.Context, grp directory.Group) error {
	if !grp.LevelID.Valid {
		return nil
	}
	var found bool
	err := repo.db.GetContext(ctx, &found, `SELECT EXISTS (SELECT 1 FROM levels WHERE id = $1)`, grp.LevelID.Int)
	if err != nil {
		return errors.Wrap(err, "checking level")
	}
	if !found {
		return directory.ErrLevelNotFound
	}
	return nil
}

func (repo *directoryRepository) CreateGroup(ctx context.Context, grp directory.Group) (directory.Group, error) {
	if err := repo.levelExists(ctx, grp); err != nil {
		return directory.Group{}, err
	}
	var created directory.Group
	err := repo.db.GetContext(ctx, &created, `WITH g AS (
			INSERT INTO class_groups (name, level_id) VALUES ($1, $2) RETURNING id, name, level_id
		)
		SELECT g.id, g.name, g.level_id, l.name AS level_name FROM g LEFT JOIN levels l ON l.id = g.level_id`,
		grp.Name, grp.LevelID)
	return created, errors.Wrap(err, "inserting group")
}

func (repo *directoryRepository) UpdateGroup(ctx context.Context, grp directory.Group) error {
	if err := repo.levelExists(ctx, grp); err != nil {
		return err
	}
	res, err := repo.db.ExecContext(ctx, `UPDATE class_groups SET name = $1, level_id = $2 WHERE id = $3`,
		grp.Name, grp.LevelID, grp.ID)
	if err != nil {
		return errors.Wrap(err, "updating group")
	}
	return checkAffected(res, directory.ErrGroupNotFound)
}

func (repo *directoryRepository) DeleteGroups(ctx context.Context, ids ...int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM class_groups WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting groups")
}

// Subjects

func (repo *directoryRepository) QuerySubjects(ctx context.Context) ([]directory.Subject, error) {
	subjects := make([]directory.Subject, 0)
	err := repo.db.SelectContext(ctx, &subjects, `SELECT id, name, description FROM subjects ORDER BY name, id`)
	return subjects, errors.Wrap(err, "querying subjects")
}

func (repo *directoryRepository) CreateSubject(ctx context.Context, sub directory.Subject) (directory.Subject, error) {
	err := repo.db.GetContext(ctx, &sub.ID, `INSERT INTO subjects (name, description) VALUES ($1, $2) RETURNING id`,
		sub.Name, sub.Description)
	return sub, errors.Wrap(err, "inserting subject")
}

func (repo *directoryRepository) UpdateSubject(ctx context.Context, sub directory.Subject) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE subjects SET name = $1, description = $2 WHERE id = $3`,
		sub.Name, sub.Description, sub.ID)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return checkAffected(res, directory.ErrSubjectNotFound)
}

func (repo *directoryRepository) DeleteSubjects(ctx context.Context, ids ...int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting subjects")
}

// Assignments

func checkTeacher(ctx context.Context, tx *sqlx.Tx, teacherID int) error {
	var found bool
	err := tx.GetContext(ctx, &found, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND type = 'teacher')`, teacherID)
	if err != nil {
		return errors.Wrap(err, "checking teacher")
	}
	if !found {
		return user.ErrNotFound
	}
	return nil
}

// replaceAssignments swaps the rows of a teacher in table for ids, in one transaction.
// insert selects the rows to add from $2 (the ids) for teacher $1; ids not matching a row are ignored.
func (repo *directoryRepository) replaceAssignments(ctx context.Context, teacherID int, ids []int, table, insert string) error {
	return database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := checkTeacher(ctx, tx, teacherID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE teacher_id = $1`, teacherID); err != nil {
			return errors.Wrapf(err, "clearing %s", table)
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, insert, teacherID, pq.Array(ids)); err != nil {
			return errors.Wrapf(err, "inserting %s", table)
		}
		return nil
	})
}

func (repo *directoryRepository) QueryTeacherSubjects(ctx context.Context) ([]directory.TeacherSubject, error) {
	res := make([]directory.TeacherSubject, 0)
	err := repo.db.SelectContext(ctx, &res, `SELECT ts.teacher_id, ts.subject_id, t.name AS teacher_name, s.name AS subject_name
		FROM teacher_subjects ts
		JOIN users t ON t.id = ts.teacher_id
		JOIN subjects s ON s.id = ts.subject_id
		ORDER BY ts.teacher_id, ts.subject_id`)
	return res, errors.Wrap(err, "querying teacher subjects")
}

func (repo *directoryRepository) ReplaceTeacherSubjects(ctx context.Context, teacherID int, subjectIDs []int) error {
	return repo.replaceAssignments(ctx, teacherID, subjectIDs, "teacher_subjects",
		`INSERT INTO teacher_subjects (teacher_id, subject_id) SELECT $1, id FROM subjects WHERE id = ANY($2)`)
}

func (repo *directoryRepository) DeleteTeacherSubject(ctx context.Context, teacherID, subjectID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM teacher_subjects WHERE teacher_id = $1 AND subject_id = $2`,
		teacherID, subjectID)
	return errors.Wrap(err, "deleting teacher subject")
}

func (repo *directoryRepository) QueryTeacherGroups(ctx context.Context) ([]directory.TeacherGroup, error) {
	res := make([]directory.TeacherGroup, 0)
	err := repo.db.SelectContext(ctx, &res, `SELECT tg.teacher_id, tg.group_id, t.name AS teacher_name,
			g.name AS group_name, l.name AS level_name
		FROM teacher_groups tg
		JOIN users t ON t.id = tg.teacher_id
		JOIN class_groups g ON g.id = tg.group_id
		LEFT JOIN levels l ON l.id = g.level_id
		ORDER BY tg.teacher_id, tg.group_id`)
	return res, errors.Wrap(err, "querying teacher groups")
}

func (repo *directoryRepository) ReplaceTeacherGroups(ctx context.Context, teacherID int, groupIDs []int) error {
	return repo.replaceAssignments(ctx, teacherID, groupIDs, "teacher_groups",
		`INSERT INTO teacher_groups (teacher_id, group_id) SELECT $1, id FROM class_groups WHERE id = ANY($2)`)
}

func (repo *directoryRepository) DeleteTeacherGroup(ctx context.Context, teacherID, groupID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM teacher_groups WHERE teacher_id = $1 AND group_id = $2`,
		teacherID, groupID)
	return errors.Wrap(err, "deleting teacher group")
}

func (repo *directoryRepository) QueryTeacherStudents(ctx context.Context) ([]directory.TeacherStudent, error) {
	res := make([]directory.TeacherStudent, 0)
	err := repo.db.SelectContext(ctx, &res, `SELECT tts.teacher_id, tts.student_id, u.name AS student_name,
			u.level_id, u.group_id, l.name AS level_name, g.name AS group_name
		FROM teacher_teaching_students tts
		JOIN users u ON u.id = tts.student_id
		LEFT JOIN levels l ON l.id = u.level_id
		LEFT JOIN class_groups g ON g.id = u.group_id
		ORDER BY tts.teacher_id, tts.student_id`)
	return res, errors.Wrap(err, "querying teacher students")
}

func (repo *directoryRepository) ReplaceTeacherStudents(ctx context.Context, teacherID int, studentIDs []int) error {
	return repo.replaceAssignments(ctx, teacherID, studentIDs, "teacher_teaching_students",
		`INSERT INTO teacher_teaching_students (teacher_id, student_id)
		SELECT $1, id FROM users WHERE type = 'student' AND id = ANY($2)`)
}

func (repo *directoryRepository) QueryStudentTeacherLinks(ctx context.Context) ([]directory.StudentTeacherLink, error) {
	res := make([]directory.StudentTeacherLink, 0)
	err := repo.db.SelectContext(ctx, &res, `SELECT stl.student_id, stl.teacher_id, s.name AS student_name, t.name AS teacher_name
		FROM student_teacher_links stl
		JOIN users s ON s.id = stl.student_id
		JOIN users t ON t.id = stl.teacher_id
		ORDER BY stl.student_id, stl.teacher_id`)
	return res, errors.Wrap(err, "querying links")
}

func (repo *directoryRepository) LinkStudents(ctx context.Context, teacherID int, studentIDs []int) error {
	return database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := checkTeacher(ctx, tx, teacherID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO student_teacher_links (student_id, teacher_id)
			SELECT id, $1 FROM users WHERE type = 'student' AND id = ANY($2)
			ON CONFLICT DO NOTHING`, teacherID, pq.Array(studentIDs))
		return errors.Wrap(err, "linking students")
	})
}

func (repo *directoryRepository) UnlinkStudent(ctx context.Context, studentID, teacherID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM student_teacher_links WHERE student_id = $1 AND teacher_id = $2`,
		studentID, teacherID)
	return errors.Wrap(err, "unlinking student")
}

// Scope

func (repo *directoryRepository) AssignedGroups(ctx context.Context, teacherID int) ([]directory.Group, error) {
	groups := make([]directory.Group, 0)
	err := repo.db.SelectContext(ctx, &groups, groupQuery+`
		JOIN teacher_groups tg ON tg.group_id = g.id
		WHERE tg.teacher_id = $1
		ORDER BY g.name, g.id`, teacherID)
	return groups, errors.Wrap(err, "querying assigned groups")
}

func (repo *directoryRepository) GroupsStudents(ctx context.Context, groupIDs []int) ([]directory.ScopeStudent, error) {
	students := make([]directory.ScopeStudent, 0)
	err := repo.db.SelectContext(ctx, &students, `SELECT `+scopeStudentColumns+`
		FROM users u
		LEFT JOIN levels l ON l.id = u.level_id
		LEFT JOIN class_groups g ON g.id = u.group_id
		WHERE u.type = 'student' AND u.group_id = ANY($1)
		ORDER BY u.name, u.id`, pq.Array(groupIDs))
	return students, errors.Wrap(err, "querying group students")
}

func (repo *directoryRepository) AssignedStudents(ctx context.Context, teacherID int) ([]directory.ScopeStudent, error) {
	students := make([]directory.ScopeStudent, 0)
	err := repo.db.SelectContext(ctx, &students, `SELECT `+scopeStudentColumns+`
		FROM teacher_teaching_students tts
		JOIN users u ON u.id = tts.student_id
		LEFT JOIN levels l ON l.id = u.level_id
		LEFT JOIN class_groups g ON g.id = u.group_id
		WHERE tts.teacher_id = $1 AND u.type = 'student'
		ORDER BY u.name, u.id`, teacherID)
	return students, errors.Wrap(err, "querying assigned students")
}
