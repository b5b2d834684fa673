package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/storage/database"
)

const userColumns = `u.id, u.name, u.username, u.password_hash, u.email, u.type, u.phone, u.avatar,
	u.level_id, u.group_id, u.registration_number, u.created_at, u.login_count, u.last_login`

const studentViewQuery = `SELECT ` + userColumns + `, l.name AS level_name, g.name AS group_name
	FROM users u
	LEFT JOIN levels l ON l.id = u.level_id
	LEFT JOIN class_groups g ON g.id = u.group_id
	WHERE u.type = 'student'`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	const q = `INSERT INTO users (name, username, password_hash, email, type, phone, avatar, level_id, group_id, registration_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`
	err := repo.db.QueryRowxContext(ctx, q,
		usr.Name, usr.Username, usr.PasswordHash, usr.Email, usr.Type, usr.Phone, usr.Avatar,
		usr.LevelID, usr.GroupID, usr.RegistrationNumber,
	).Scan(&usr.ID, &usr.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr, `SELECT `+userColumns+` FROM users u WHERE `+where+` ORDER BY u.id LIMIT 1`, arg)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound)
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	return repo.getUser(ctx, "u.id = $1", id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, "u.username = $1", username)
}

func (repo *userRepository) GetAdminByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "u.type = 'admin' AND lower(u.email) = lower($1)", email)
}

func (repo *userRepository) GetStudent(ctx context.Context, id int) (user.StudentView, error) {
	var sv user.StudentView
	if err := repo.db.GetContext(ctx, &sv, studentViewQuery+` AND u.id = $1`, id); err != nil {
		return user.StudentView{}, trapNoRowsErr(err, user.ErrNotFound)
	}
	return sv, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, typ string) ([]user.User, error) {
	users := make([]user.User, 0)
	err := repo.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users u WHERE u.type = $1 ORDER BY u.name, u.id`, typ)
	return users, errors.Wrap(err, "querying users")
}

func (repo *userRepository) QueryStudents(ctx context.Context) ([]user.StudentView, error) {
	students := make([]user.StudentView, 0)
	err := repo.db.SelectContext(ctx, &students, studentViewQuery+` ORDER BY u.name, u.id`)
	return students, errors.Wrap(err, "querying students")
}

func (repo *userRepository) TeacherSubjectNames(ctx context.Context, teacherID int) ([]string, error) {
	names := make([]string, 0)
	err := repo.db.SelectContext(ctx, &names, `SELECT s.name FROM teacher_subjects ts
		JOIN subjects s ON s.id = ts.subject_id
		WHERE ts.teacher_id = $1 ORDER BY s.name`, teacherID)
	return names, errors.Wrap(err, "querying subject names")
}

func (repo *userRepository) LastStudentRegistrationNumber(ctx context.Context) (string, error) {
	var regNum string
	err := repo.db.GetContext(ctx, &regNum, `SELECT COALESCE(registration_number, '') FROM users
		WHERE type = 'student' ORDER BY id DESC LIMIT 1`)
	if err != nil {
		return "", trapNoRowsErr(err, nil)
	}
	return regNum, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) error {
	const q = `UPDATE users SET name = :name, username = :username, password_hash = :password_hash, email = :email,
		type = :type, phone = :phone, avatar = :avatar, level_id = :level_id, group_id = :group_id,
		registration_number = :registration_number
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, usr)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrUsernameExists
		}
		return errors.Wrap(err, "updating user")
	}
	return checkAffected(res, user.ErrNotFound)
}

func (repo *userRepository) RecordLogin(ctx context.Context, id int) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr, `UPDATE users u SET login_count = u.login_count + 1, last_login = now()
		WHERE u.id = $1 RETURNING `+userColumns, id)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound)
	}
	return usr, nil
}

// DeleteUsers relies on the ON DELETE CASCADE foreign keys for links, assignments,
// group memberships, password resets and notifications.
func (repo *userRepository) DeleteUsers(ctx context.Context, ids ...int) error {
	return database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM student_teacher_links WHERE student_id = ANY($1) OR teacher_id = ANY($1)`,
			`DELETE FROM teacher_teaching_students WHERE teacher_id = ANY($1) OR student_id = ANY($1)`,
			`DELETE FROM teacher_subjects WHERE teacher_id = ANY($1)`,
			`DELETE FROM teacher_groups WHERE teacher_id = ANY($1)`,
			`DELETE FROM group_members WHERE user_id = ANY($1)`,
			`DELETE FROM users WHERE id = ANY($1)`,
		} {
			if _, err := tx.ExecContext(ctx, q, pq.Array(ids)); err != nil {
				return errors.Wrap(err, "deleting users")
			}
		}
		return nil
	})
}

func (repo *userRepository) CreatePasswordReset(ctx context.Context, pr user.PasswordReset) error {
	_, err := repo.db.NamedExecContext(ctx, `INSERT INTO password_resets (token, user_id, expires_at)
		VALUES (:token, :user_id, :expires_at)`, pr)
	return errors.Wrap(err, "inserting password reset")
}

func (repo *userRepository) GetPasswordReset(ctx context.Context, token string) (user.PasswordReset, error) {
	var pr user.PasswordReset
	err := repo.db.GetContext(ctx, &pr, `SELECT token, user_id, expires_at FROM password_resets WHERE token = $1`, token)
	if err != nil {
		return user.PasswordReset{}, trapNoRowsErr(err, user.ErrResetNotFound)
	}
	return pr, nil
}

func (repo *userRepository) RedeemPasswordReset(ctx context.Context, pr user.PasswordReset, passwordHash []byte) error {
	return database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, pr.UserID)
		if err != nil {
			return errors.Wrap(err, "updating password")
		}
		if err = checkAffected(res, user.ErrNotFound); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM password_resets WHERE token = $1`, pr.Token)
		return errors.Wrap(err, "deleting password reset")
	})
}

func (repo *userRepository) QueryUsageStats(ctx context.Context) ([]user.UsageStat, error) {
	stats := make([]user.UsageStat, 0)
	err := repo.db.SelectContext(ctx, &stats, `SELECT id, name, type, login_count, last_login FROM users
		WHERE login_count > 0 ORDER BY last_login DESC NULLS LAST, id`)
	return stats, errors.Wrap(err, "querying usage stats")
}

func (repo *userRepository) ResetUsageStats(ctx context.Context) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE users SET login_count = 0, last_login = NULL`)
	return errors.Wrap(err, "resetting usage stats")
}
