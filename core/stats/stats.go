package stats

import "context"

// Stats are the headline counts of the admin dashboard.
// ActiveUsers counts the students who logged in at least once.
type Stats struct {
	Teachers    int `db:"teachers" json:"teachers"`
	Students    int `db:"students" json:"students"`
	Messages    int `db:"messages" json:"messages"`
	Subjects    int `db:"subjects" json:"subjects"`
	Links       int `db:"links" json:"links"`
	Lessons     int `db:"lessons" json:"lessons"`
	ActiveUsers int `db:"active_users" json:"active_users"`
}

type Repository interface {
	Counts(ctx context.Context) (Stats, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	return svc.repo.Counts(ctx)
}
