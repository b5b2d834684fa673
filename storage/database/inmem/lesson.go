package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/user"
)

type lessonRepository struct {
	db *DB
}

var _ lesson.Repository = (*lessonRepository)(nil) // interface compliance check

func NewLessonRepository(db *DB) *lessonRepository {
	return &lessonRepository{db: db}
}

func (repo *lessonRepository) CreateLesson(ctx context.Context, l lesson.Lesson) (lesson.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if l.SubjectID.Valid {
		if _, ok := repo.db.subjects[l.SubjectID.Int]; !ok {
			l.SubjectID = null.Int{}
		}
	}
	l.ID = repo.db.nextPK()
	l.TargetLevels = append(core.IDList(nil), l.TargetLevels...)
	l.TargetGroups = append(core.IDList(nil), l.TargetGroups...)
	l.TargetStudents = append(core.IDList(nil), l.TargetStudents...)
	l.TeacherName, l.TeacherType, l.SubjectName = null.String{}, null.String{}, null.String{}
	repo.db.lessons[l.ID] = &l
	return repo.db.lessonView(&l), nil
}

// lessonView must be called with the lock held.
func (db *DB) lessonView(l *lesson.Lesson) lesson.Lesson {
	v := *l
	if t, ok := db.users[l.TeacherID]; ok {
		v.TeacherName = null.StringFrom(t.Name)
		v.TeacherType = null.StringFrom(t.Type)
	}
	if l.SubjectID.Valid {
		if sub, ok := db.subjects[l.SubjectID.Int]; ok {
			v.SubjectName = null.StringFrom(sub.Name)
		}
	}
	return v
}

func (repo *lessonRepository) QueryLessons(ctx context.Context, teacherID int) ([]lesson.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lessons := make([]lesson.Lesson, 0)
	for _, l := range repo.db.lessons {
		if teacherID <= 0 || l.TeacherID == teacherID {
			lessons = append(lessons, repo.db.lessonView(l))
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		if !lessons[i].CreatedAt.Equal(lessons[j].CreatedAt) {
			return lessons[i].CreatedAt.After(lessons[j].CreatedAt)
		}
		return lessons[i].ID > lessons[j].ID
	})
	return lessons, nil
}

func (repo *lessonRepository) DeleteLessons(ctx context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.lessons, id)
	}
	return nil
}

func (repo *lessonRepository) TargetedStudents(ctx context.Context, t lesson.Target) ([]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	levels, groups, students := idSet(t.Levels), idSet(t.Groups), idSet(t.Students)
	matches := func(u *user.User) bool {
		if t.All {
			return true
		}
		if _, ok := students[u.ID]; ok {
			return true
		}
		if _, ok := groups[u.GroupID.Int]; ok && u.GroupID.Valid {
			return true
		}
		_, ok := levels[u.LevelID.Int]
		return ok && u.LevelID.Valid
	}

	ids := make(map[int]struct{})
	for _, u := range repo.db.users {
		if u.IsStudent() && matches(u) {
			ids[u.ID] = struct{}{}
		}
	}
	return sortedKeys(ids), nil
}
