package directory

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/user"
)

var ErrEmptyWorkbook = core.BadRequest("workbook has no sheet")

// UserCreator creates users; user.Repository is one.
type UserCreator interface {
	CreateUser(ctx context.Context, usr user.User) (user.User, error)
}

// Importer creates teachers & students from spreadsheets.
// Rows without a name are skipped; rows failing to insert are not counted and do not stop the import.
type Importer struct {
	repo  Repository
	users UserCreator
}

func NewImporter(repo Repository, users UserCreator) *Importer {
	return &Importer{repo: repo, users: users}
}

// readRows returns the rows of the first sheet as maps keyed by their lower-cased, trimmed header.
func readRows(r io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "reading workbook"))
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = core.CleanString(h, true /* lower */)
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, cell := range row {
			if i < len(header) && header[i] != "" {
				rec[header[i]] = strings.TrimSpace(cell)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ImportTeachers creates a teacher per row (name, username, phone).
// A missing username is generated; a missing phone gets 6 random digits. The phone is the password.
func (imp *Importer) ImportTeachers(ctx context.Context, r io.Reader) (int, error) {
	records, err := readRows(r)
	if err != nil {
		return 0, err
	}

	var imported int
	for _, rec := range records {
		name := rec["name"]
		if name == "" {
			continue
		}
		username := rec["username"]
		if username == "" {
			username = fmt.Sprintf("t_%d_%d", time.Now().UnixNano()/int64(time.Millisecond), rand.Intn(100))
		}
		phone := rec["phone"]
		if phone == "" {
			phone = core.RandomDigits(6)
		}

		usr := user.User{
			Name:     name,
			Username: username,
			Type:     user.TypeTeacher,
			Phone:    null.StringFrom(phone),
		}
		if err := usr.SetPassword(phone); err != nil {
			return imported, errors.Wrap(err, "setting password")
		}
		if _, err := imp.users.CreateUser(ctx, usr); err == nil {
			imported++
		}
	}
	return imported, nil
}

// ImportStudents creates a student per row (name, username, level, group).
// Level & group names are matched case-insensitively. When a group name exists in several levels,
// the one under the row's level wins; without a level the first match is taken along with its level.
// Every student gets a random 6 digits registration number, which is also its password.
func (imp *Importer) ImportStudents(ctx context.Context, r io.Reader) (int, error) {
	records, err := readRows(r)
	if err != nil {
		return 0, err
	}

	levels, err := imp.repo.QueryLevels(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "querying levels")
	}
	groups, err := imp.repo.QueryGroups(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "querying groups")
	}

	var imported int
	for _, rec := range records {
		name := rec["name"]
		if name == "" {
			continue
		}
		levelID, groupID := resolvePlacement(levels, groups, rec["level"], rec["group"])

		regNum := core.RandomDigits(6)
		username := rec["username"]
		if username == "" {
			username = "s_" + regNum
		}

		usr := user.User{
			Name:               name,
			Username:           username,
			Type:               user.TypeStudent,
			LevelID:            levelID,
			GroupID:            groupID,
			RegistrationNumber: null.StringFrom(regNum),
		}
		if err := usr.SetPassword(regNum); err != nil {
			return imported, errors.Wrap(err, "setting password")
		}
		if _, err := imp.users.CreateUser(ctx, usr); err == nil {
			imported++
		}
	}
	return imported, nil
}

func resolvePlacement(levels []Level, groups []Group, levelName, groupName string) (levelID, groupID null.Int) {
	if levelName = core.CleanString(levelName, true /* lower */); levelName != "" {
		for _, lvl := range levels {
			if core.CleanString(lvl.Name, true /* lower */) == levelName {
				levelID = null.IntFrom(lvl.ID)
				break
			}
		}
	}

	if groupName = core.CleanString(groupName, true /* lower */); groupName == "" {
		return levelID, groupID
	}
	var matches []Group
	for _, grp := range groups {
		if core.CleanString(grp.Name, true /* lower */) == groupName {
			matches = append(matches, grp)
		}
	}
	if len(matches) == 0 {
		return levelID, groupID
	}

	if levelID.Valid {
		for _, grp := range matches {
			if grp.LevelID.Valid && grp.LevelID.Int == levelID.Int {
				return levelID, null.IntFrom(grp.ID)
			}
		}
		return levelID, groupID
	}
	return matches[0].LevelID, null.IntFrom(matches[0].ID)
}
