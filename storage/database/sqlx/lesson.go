package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/storage/database"
)

// targetTables maps each target table to the column holding the targeted id.
var targetTables = []struct{ table, column string }{
	{"lesson_target_levels", "level_id"},
	{"lesson_target_groups", "group_id"},
	{"lesson_target_students", "student_id"},
}

type lessonRepository struct {
	db *sqlx.DB
}

var _ lesson.Repository = (*lessonRepository)(nil) // interface compliance check

func NewLessonRepository(db *sqlx.DB) *lessonRepository {
	return &lessonRepository{db: db}
}

func targetsOf(l *lesson.Lesson) [][]int {
	return [][]int{l.TargetLevels, l.TargetGroups, l.TargetStudents}
}

func (repo *lessonRepository) CreateLesson(ctx context.Context, l lesson.Lesson) (lesson.Lesson, error) {
	err := database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &l.ID, `INSERT INTO lessons (teacher_id, subject_id, title, description, file_path, target_all, created_at)
			VALUES ($1, (SELECT id FROM subjects WHERE id = $2), $3, $4, $5, $6, $7) RETURNING id`,
			l.TeacherID, l.SubjectID, l.Title, l.Description, l.FilePath, l.TargetAll, l.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "inserting lesson")
		}
		for i, ids := range targetsOf(&l) {
			if len(ids) == 0 {
				continue
			}
			tt := targetTables[i]
			_, err = tx.ExecContext(ctx, `INSERT INTO `+tt.table+` (lesson_id, `+tt.column+`)
				SELECT $1, unnest($2::int[]) ON CONFLICT DO NOTHING`, l.ID, pq.Array(ids))
			if err != nil {
				return errors.Wrapf(err, "inserting %s", tt.table)
			}
		}
		return nil
	})
	if err != nil {
		return lesson.Lesson{}, err
	}

	lessons, err := repo.query(ctx, `l.id = $1`, l.ID)
	if err != nil || len(lessons) == 0 {
		return l, err
	}
	return lessons[0], nil
}

func (repo *lessonRepository) query(ctx context.Context, where string, args ...interface{}) ([]lesson.Lesson, error) {
	lessons := make([]lesson.Lesson, 0)
	err := repo.db.SelectContext(ctx, &lessons, `SELECT l.id, l.teacher_id, l.subject_id, l.title, l.description,
			l.file_path, l.target_all, l.created_at,
			u.name AS teacher_name, u.type AS teacher_type, s.name AS subject_name
		FROM lessons l
		LEFT JOIN users u ON u.id = l.teacher_id
		LEFT JOIN subjects s ON s.id = l.subject_id
		WHERE `+where+`
		ORDER BY l.created_at DESC, l.id DESC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	if len(lessons) == 0 {
		return lessons, nil
	}

	idx := make(map[int]int, len(lessons))
	ids := make([]int, 0, len(lessons))
	for i, l := range lessons {
		idx[l.ID] = i
		ids = append(ids, l.ID)
	}
	for i, tt := range targetTables {
		var rows []struct {
			LessonID int `db:"lesson_id"`
			TargetID int `db:"target_id"`
		}
		err = repo.db.SelectContext(ctx, &rows, `SELECT lesson_id, `+tt.column+` AS target_id FROM `+tt.table+`
			WHERE lesson_id = ANY($1) ORDER BY lesson_id, `+tt.column, pq.Array(ids))
		if err != nil {
			return nil, errors.Wrapf(err, "querying %s", tt.table)
		}
		for _, r := range rows {
			l := &lessons[idx[r.LessonID]]
			switch i {
			case 0:
				l.TargetLevels = append(l.TargetLevels, r.TargetID)
			case 1:
				l.TargetGroups = append(l.TargetGroups, r.TargetID)
			default:
				l.TargetStudents = append(l.TargetStudents, r.TargetID)
			}
		}
	}
	return lessons, nil
}

func (repo *lessonRepository) QueryLessons(ctx context.Context, teacherID int) ([]lesson.Lesson, error) {
	if teacherID > 0 {
		return repo.query(ctx, `l.teacher_id = $1`, teacherID)
	}
	return repo.query(ctx, `true`)
}

func (repo *lessonRepository) DeleteLessons(ctx context.Context, ids ...int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting lessons")
}

func (repo *lessonRepository) TargetedStudents(ctx context.Context, t lesson.Target) ([]int, error) {
	ids := make([]int, 0)
	err := repo.db.SelectContext(ctx, &ids, `SELECT id FROM users
		WHERE type = 'student' AND ($1 OR id = ANY($2) OR group_id = ANY($3) OR level_id = ANY($4))
		ORDER BY id`, t.All, pq.Array(t.Students), pq.Array(t.Groups), pq.Array(t.Levels))
	return ids, errors.Wrap(err, "querying targeted students")
}
