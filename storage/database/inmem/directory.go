package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/user"
)

type directoryRepository struct {
	db *DB
}

var _ directory.Repository = (*directoryRepository)(nil) // interface compliance check

func NewDirectoryRepository(db *DB) *directoryRepository {
	return &directoryRepository{db: db}
}

// Levels

func (repo *directoryRepository) QueryLevels(ctx context.Context) ([]directory.Level, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	levels := make([]directory.Level, 0, len(repo.db.levels))
	for _, lvl := range repo.db.levels {
		levels = append(levels, *lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Name < levels[j].Name })
	return levels, nil
}

func (db *DB) levelNameTaken(name string, excludedID int) bool {
	for _, lvl := range db.levels {
		if lvl.Name == name && lvl.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *directoryRepository) CreateLevel(ctx context.Context, lvl directory.Level) (directory.Level, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.db.levelNameTaken(lvl.Name, 0) {
		return directory.Level{}, directory.ErrLevelExists
	}
	lvl.ID = repo.db.nextPK()
	repo.db.levels[lvl.ID] = &lvl
	return lvl, nil
}

func (repo *directoryRepository) UpdateLevel(ctx context.Context, lvl directory.Level) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.levels[lvl.ID]; !ok {
		return directory.ErrLevelNotFound
	}
	if repo.db.levelNameTaken(lvl.Name, lvl.ID) {
		return directory.ErrLevelExists
	}
	repo.db.levels[lvl.ID] = &lvl
	return nil
}

func (repo *directoryRepository) DeleteLevels(ctx context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.levels, id)
		for _, grp := range repo.db.groups {
			if grp.LevelID.Valid && grp.LevelID.Int == id {
				grp.LevelID = null.Int{}
			}
		}
		for _, u := range repo.db.users {
			if u.LevelID.Valid && u.LevelID.Int == id {
				u.LevelID = null.Int{}
			}
		}
	}
	return nil
}

// Groups

func (db *DB) groupView(grp *directory.Group) directory.Group {
	g := *grp
	g.LevelName = db.levelName(g.LevelID)
	return g
}

func (repo *directoryRepository) QueryGroups(ctx context.Context) ([]directory.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]directory.Group, 0, len(repo.db.groups))
	for _, grp := range repo.db.groups {
		groups = append(groups, repo.db.groupView(grp))
	}
	sortGroups(groups)
	return groups, nil
}

func sortGroups(groups []directory.Group) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].ID < groups[j].ID
	})
}

func (repo *directoryRepository) CreateGroup(ctx context.Context, grp directory.Group) (directory.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if grp.LevelID.Valid {
		if _, ok := repo.db.levels[grp.LevelID.Int]; !ok {
			return directory.Group{}, directory.ErrLevelNotFound
		}
	}
	grp.ID = repo.db.nextPK()
	grp.LevelName = null.String{}
	repo.db.groups[grp.ID] = &grp
	return repo.db.groupView(&grp), nil
}

func (repo *directoryRepository) UpdateGroup(ctx context.Context, grp directory.Group) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.groups[grp.ID]; !ok {
		return directory.ErrGroupNotFound
	}
	if grp.LevelID.Valid {
		if _, ok := repo.db.levels[grp.LevelID.Int]; !ok {
			return directory.ErrLevelNotFound
		}
	}
	grp.LevelName = null.String{}
	repo.db.groups[grp.ID] = &grp
	return nil
}

func (repo *directoryRepository) DeleteGroups(ctx context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	del := idSet(ids)
	for id := range del {
		delete(repo.db.groups, id)
	}
	for _, u := range repo.db.users {
		if _, ok := del[u.GroupID.Int]; ok && u.GroupID.Valid {
			u.GroupID = null.Int{}
		}
	}
	repo.db.teacherGroup.removeWhere(func(p pair) bool { _, ok := del[p.b]; return ok })
	return nil
}

// Subjects

func (repo *directoryRepository) QuerySubjects(ctx context.Context) ([]directory.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subjects := make([]directory.Subject, 0, len(repo.db.subjects))
	for _, sub := range repo.db.subjects {
		subjects = append(subjects, *sub)
	}
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].Name != subjects[j].Name {
			return subjects[i].Name < subjects[j].Name
		}
		return subjects[i].ID < subjects[j].ID
	})
	return subjects, nil
}

func (repo *directoryRepository) CreateSubject(ctx context.Context, sub directory.Subject) (directory.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sub.ID = repo.db.nextPK()
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *directoryRepository) UpdateSubject(ctx context.Context, sub directory.Subject) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.subjects[sub.ID]; !ok {
		return directory.ErrSubjectNotFound
	}
	repo.db.subjects[sub.ID] = &sub
	return nil
}

func (repo *directoryRepository) DeleteSubjects(ctx context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	del := idSet(ids)
	for id := range del {
		delete(repo.db.subjects, id)
	}
	repo.db.teacherSubject.removeWhere(func(p pair) bool { _, ok := del[p.b]; return ok })
	for _, l := range repo.db.lessons {
		if _, ok := del[l.SubjectID.Int]; ok && l.SubjectID.Valid {
			l.SubjectID = null.Int{}
		}
	}
	return nil
}

// Assignments

// replace must be called with the write lock held. Ids not matching an existing row are ignored.
func replace(set pairSet, teacherID int, ids []int, exists func(id int) bool) {
	set.removeWhere(func(p pair) bool { return p.a == teacherID })
	for _, id := range ids {
		if exists(id) {
			set.add(teacherID, id)
		}
	}
}

func (db *DB) isUserOfType(id int, typ string) bool {
	u, ok := db.users[id]
	return ok && u.Type == typ
}

func (repo *directoryRepository) QueryTeacherSubjects(ctx context.Context) ([]directory.TeacherSubject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]directory.TeacherSubject, 0, len(repo.db.teacherSubject))
	for _, p := range repo.db.teacherSubject.sorted() {
		t, tok := repo.db.users[p.a]
		s, sok := repo.db.subjects[p.b]
		if tok && sok {
			res = append(res, directory.TeacherSubject{TeacherID: t.ID, SubjectID: s.ID, TeacherName: t.Name, SubjectName: s.Name})
		}
	}
	return res, nil
}

func (repo *directoryRepository) ReplaceTeacherSubjects(ctx context.Context, teacherID int, subjectIDs []int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.db.isUserOfType(teacherID, user.TypeTeacher) {
		return user.ErrNotFound
	}
	replace(repo.db.teacherSubject, teacherID, subjectIDs, func(id int) bool { _, ok := repo.db.subjects[id]; return ok })
	return nil
}

func (repo *directoryRepository) DeleteTeacherSubject(ctx context.Context, teacherID, subjectID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.teacherSubject.remove(teacherID, subjectID)
	return nil
}

func (repo *directoryRepository) QueryTeacherGroups(ctx context.Context) ([]directory.TeacherGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]directory.TeacherGroup, 0, len(repo.db.teacherGroup))
	for _, p := range repo.db.teacherGroup.sorted() {
		t, tok := repo.db.users[p.a]
		g, gok := repo.db.groups[p.b]
		if tok && gok {
			res = append(res, directory.TeacherGroup{
				TeacherID:   t.ID,
				GroupID:     g.ID,
				TeacherName: t.Name,
				GroupName:   g.Name,
				LevelName:   repo.db.levelName(g.LevelID),
			})
		}
	}
	return res, nil
}

func (repo *directoryRepository) ReplaceTeacherGroups(ctx context.Context, teacherID int, groupIDs []int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.db.isUserOfType(teacherID, user.TypeTeacher) {
		return user.ErrNotFound
	}
	replace(repo.db.teacherGroup, teacherID, groupIDs, func(id int) bool { _, ok := repo.db.groups[id]; return ok })
	return nil
}

func (repo *directoryRepository) DeleteTeacherGroup(ctx context.Context, teacherID, groupID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.teacherGroup.remove(teacherID, groupID)
	return nil
}

func (repo *directoryRepository) QueryTeacherStudents(ctx context.Context) ([]directory.TeacherStudent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]directory.TeacherStudent, 0, len(repo.db.teacherStudent))
	for _, p := range repo.db.teacherStudent.sorted() {
		s, ok := repo.db.users[p.b]
		if !ok {
			continue
		}
		res = append(res, directory.TeacherStudent{
			TeacherID:   p.a,
			StudentID:   s.ID,
			StudentName: s.Name,
			LevelID:     s.LevelID,
			GroupID:     s.GroupID,
			LevelName:   repo.db.levelName(s.LevelID),
			GroupName:   repo.db.groupName(s.GroupID),
		})
	}
	return res, nil
}

func (repo *directoryRepository) ReplaceTeacherStudents(ctx context.Context, teacherID int, studentIDs []int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.db.isUserOfType(teacherID, user.TypeTeacher) {
		return user.ErrNotFound
	}
	replace(repo.db.teacherStudent, teacherID, studentIDs, func(id int) bool {
		return repo.db.isUserOfType(id, user.TypeStudent)
	})
	return nil
}

func (repo *directoryRepository) QueryStudentTeacherLinks(ctx context.Context) ([]directory.StudentTeacherLink, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]directory.StudentTeacherLink, 0, len(repo.db.studentTeacher))
	for _, p := range repo.db.studentTeacher.sorted() {
		s, sok := repo.db.users[p.a]
		t, tok := repo.db.users[p.b]
		if sok && tok {
			res = append(res, directory.StudentTeacherLink{StudentID: s.ID, TeacherID: t.ID, StudentName: s.Name, TeacherName: t.Name})
		}
	}
	return res, nil
}

func (repo *directoryRepository) LinkStudents(ctx context.Context, teacherID int, studentIDs []int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.db.isUserOfType(teacherID, user.TypeTeacher) {
		return user.ErrNotFound
	}
	for _, id := range studentIDs {
		if repo.db.isUserOfType(id, user.TypeStudent) {
			repo.db.studentTeacher.add(id, teacherID)
		}
	}
	return nil
}

func (repo *directoryRepository) UnlinkStudent(ctx context.Context, studentID, teacherID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.studentTeacher.remove(studentID, teacherID)
	return nil
}

// Scope

func (db *DB) scopeStudent(u *user.User) directory.ScopeStudent {
	return directory.ScopeStudent{
		ID:                 u.ID,
		Name:               u.Name,
		LevelID:            u.LevelID,
		GroupID:            u.GroupID,
		RegistrationNumber: u.RegistrationNumber,
		LevelName:          db.levelName(u.LevelID),
		GroupName:          db.groupName(u.GroupID),
	}
}

func (repo *directoryRepository) AssignedGroups(ctx context.Context, teacherID int) ([]directory.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]directory.Group, 0)
	for _, p := range repo.db.teacherGroup.sorted() {
		if grp, ok := repo.db.groups[p.b]; ok && p.a == teacherID {
			groups = append(groups, repo.db.groupView(grp))
		}
	}
	sortGroups(groups)
	return groups, nil
}

func (repo *directoryRepository) GroupsStudents(ctx context.Context, groupIDs []int) ([]directory.ScopeStudent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	in := idSet(groupIDs)
	students := repo.db.usersBy(func(u *user.User) bool {
		_, ok := in[u.GroupID.Int]
		return u.IsStudent() && u.GroupID.Valid && ok
	})
	res := make([]directory.ScopeStudent, 0, len(students))
	for i := range students {
		res = append(res, repo.db.scopeStudent(&students[i]))
	}
	return res, nil
}

func (repo *directoryRepository) AssignedStudents(ctx context.Context, teacherID int) ([]directory.ScopeStudent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := repo.db.usersBy(func(u *user.User) bool {
		return u.IsStudent() && repo.db.teacherStudent.has(teacherID, u.ID)
	})
	res := make([]directory.ScopeStudent, 0, len(students))
	for i := range students {
		res = append(res, repo.db.scopeStudent(&students[i]))
	}
	return res, nil
}
