package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

// usernameTaken must be called with the lock held.
func (db *DB) usernameTaken(username string, excludedID int) bool {
	for _, u := range db.users {
		if u.Username == username && u.ID != excludedID {
			return true
		}
	}
	return false
}

// usersBy must be called with the lock held.
func (db *DB) usersBy(f func(u *user.User) bool) []user.User {
	users := make([]user.User, 0)
	for _, u := range db.users {
		if f(u) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	return users
}

func (db *DB) userName(id int) null.String {
	if u, ok := db.users[id]; ok {
		return null.StringFrom(u.Name)
	}
	return null.String{}
}

func (db *DB) levelName(id null.Int) null.String {
	if id.Valid {
		if lvl, ok := db.levels[id.Int]; ok {
			return null.StringFrom(lvl.Name)
		}
	}
	return null.String{}
}

func (db *DB) groupName(id null.Int) null.String {
	if id.Valid {
		if grp, ok := db.groups[id.Int]; ok {
			return null.StringFrom(grp.Name)
		}
	}
	return null.String{}
}

func (db *DB) studentView(u *user.User) user.StudentView {
	return user.StudentView{User: *u, LevelName: db.levelName(u.LevelID), GroupName: db.groupName(u.GroupID)}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.db.usernameTaken(usr.Username, 0) {
		return user.User{}, user.ErrUsernameExists
	}
	usr.ID = repo.db.nextPK()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = nowFunc().UTC()
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Username == username {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetAdminByEmail(ctx context.Context, email string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	admins := repo.db.usersBy(func(u *user.User) bool {
		return u.IsAdmin() && u.Email.Valid && strings.EqualFold(u.Email.String, email)
	})
	if len(admins) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return admins[0], nil
}

func (repo *userRepository) GetStudent(ctx context.Context, id int) (user.StudentView, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	usr, ok := repo.db.users[id]
	if !ok || !usr.IsStudent() {
		return user.StudentView{}, user.ErrNotFound
	}
	return repo.db.studentView(usr), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, typ string) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.usersBy(func(u *user.User) bool { return u.Type == typ }), nil
}

func (repo *userRepository) QueryStudents(ctx context.Context) ([]user.StudentView, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := repo.db.usersBy(func(u *user.User) bool { return u.IsStudent() })
	views := make([]user.StudentView, 0, len(students))
	for i := range students {
		views = append(views, repo.db.studentView(&students[i]))
	}
	return views, nil
}

func (repo *userRepository) TeacherSubjectNames(ctx context.Context, teacherID int) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	names := make([]string, 0)
	for _, p := range repo.db.teacherSubject.sorted() {
		if p.a != teacherID {
			continue
		}
		if sub, ok := repo.db.subjects[p.b]; ok {
			names = append(names, sub.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (repo *userRepository) LastStudentRegistrationNumber(ctx context.Context) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var last *user.User
	for _, u := range repo.db.users {
		if u.IsStudent() && (last == nil || u.ID > last.ID) {
			last = u
		}
	}
	if last == nil {
		return "", nil
	}
	return last.RegistrationNumber.String, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.ErrNotFound
	}
	if repo.db.usernameTaken(usr.Username, usr.ID) {
		return user.ErrUsernameExists
	}
	usr.CreatedAt = orig.CreatedAt
	usr.LoginCount = orig.LoginCount
	usr.LastLogin = orig.LastLogin
	repo.db.users[usr.ID] = &usr
	return nil
}

func (repo *userRepository) RecordLogin(ctx context.Context, id int) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.LoginCount++
	usr.LastLogin = null.TimeFrom(nowFunc().UTC())
	return *usr, nil
}

func (repo *userRepository) DeleteUsers(ctx context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	del := idSet(ids)
	gone := func(id int) bool { _, ok := del[id]; return ok }
	for id := range del {
		delete(repo.db.users, id)
	}

	repo.db.teacherSubject.removeWhere(func(p pair) bool { return gone(p.a) })
	repo.db.teacherGroup.removeWhere(func(p pair) bool { return gone(p.a) })
	repo.db.teacherStudent.removeWhere(func(p pair) bool { return gone(p.a) || gone(p.b) })
	repo.db.studentTeacher.removeWhere(func(p pair) bool { return gone(p.a) || gone(p.b) })
	for p := range repo.db.members {
		if gone(p.b) {
			delete(repo.db.members, p)
		}
	}
	for token, pr := range repo.db.resets {
		if gone(pr.UserID) {
			delete(repo.db.resets, token)
		}
	}
	for id, n := range repo.db.notifications {
		if gone(n.UserID) {
			delete(repo.db.notifications, id)
		}
	}
	return nil
}

func (repo *userRepository) CreatePasswordReset(ctx context.Context, pr user.PasswordReset) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[pr.UserID]; !ok {
		return user.ErrNotFound
	}
	repo.db.resets[pr.Token] = pr
	return nil
}

func (repo *userRepository) GetPasswordReset(ctx context.Context, token string) (user.PasswordReset, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if pr, ok := repo.db.resets[token]; ok {
		return pr, nil
	}
	return user.PasswordReset{}, user.ErrResetNotFound
}

func (repo *userRepository) RedeemPasswordReset(ctx context.Context, pr user.PasswordReset, passwordHash []byte) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.users[pr.UserID]
	if !ok {
		return user.ErrNotFound
	}
	usr.PasswordHash = passwordHash
	delete(repo.db.resets, pr.Token)
	return nil
}

func (repo *userRepository) QueryUsageStats(ctx context.Context) ([]user.UsageStat, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stats := make([]user.UsageStat, 0)
	for _, u := range repo.db.users {
		if u.LoginCount > 0 {
			stats = append(stats, user.UsageStat{
				ID:         u.ID,
				Name:       u.Name,
				Type:       u.Type,
				LoginCount: u.LoginCount,
				LastLogin:  u.LastLogin,
			})
		}
	}
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i].LastLogin, stats[j].LastLogin
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.Time.Equal(b.Time) {
			return a.Time.After(b.Time)
		}
		return stats[i].ID < stats[j].ID
	})
	return stats, nil
}

func (repo *userRepository) ResetUsageStats(ctx context.Context) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.users {
		u.LoginCount = 0
		u.LastLogin = null.Time{}
	}
	return nil
}
