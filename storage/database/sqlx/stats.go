package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core/stats"
)

type statsRepository struct {
	db *sqlx.DB
}

var _ stats.Repository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *sqlx.DB) *statsRepository {
	return &statsRepository{db: db}
}

func (repo *statsRepository) Counts(ctx context.Context) (stats.Stats, error) {
	var st stats.Stats
	err := repo.db.GetContext(ctx, &st, `SELECT
		(SELECT COUNT(*) FROM users WHERE type = 'teacher') AS teachers,
		(SELECT COUNT(*) FROM users WHERE type = 'student') AS students,
		(SELECT COUNT(*) FROM messages) AS messages,
		(SELECT COUNT(*) FROM subjects) AS subjects,
		(SELECT COUNT(*) FROM student_teacher_links) AS links,
		(SELECT COUNT(*) FROM lessons) AS lessons,
		(SELECT COUNT(*) FROM users WHERE type = 'student' AND login_count > 0) AS active_users`)
	return st, errors.Wrap(err, "counting")
}
