package inmemdb

import (
	"context"

	"github.com/trezcool/madrasa/core/stats"
)

type statsRepository struct {
	db *DB
}

var _ stats.Repository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *DB) *statsRepository {
	return &statsRepository{db: db}
}

func (repo *statsRepository) Counts(ctx context.Context) (stats.Stats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	st := stats.Stats{
		Messages: len(repo.db.messages),
		Subjects: len(repo.db.subjects),
		Links:    len(repo.db.studentTeacher),
		Lessons:  len(repo.db.lessons),
	}
	for _, u := range repo.db.users {
		switch {
		case u.IsTeacher():
			st.Teachers++
		case u.IsStudent():
			st.Students++
			if u.LoginCount > 0 {
				st.ActiveUsers++
			}
		}
	}
	return st, nil
}
