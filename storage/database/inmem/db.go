package inmemdb

import (
	"sort"
	"sync"
	"time"

	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/user"
)

var nowFunc = time.Now // mockable

type (
	// pair is the key of a many-to-many table.
	pair struct{ a, b int }

	pairSet map[pair]struct{}

	// DB is an in-memory store with the same relational rules as the postgres schema:
	// foreign keys cascade or are set to null on delete, messages outlive their users.
	// One lock guards every table so that multi-table writes are atomic.
	DB struct {
		mutex sync.RWMutex
		pk    int

		users          map[int]*user.User
		resets         map[string]user.PasswordReset
		levels         map[int]*directory.Level
		groups         map[int]*directory.Group
		subjects       map[int]*directory.Subject
		teacherSubject pairSet // teacher, subject
		teacherGroup   pairSet // teacher, group
		teacherStudent pairSet // teacher, student
		studentTeacher pairSet // student, teacher
		chatGroups     map[int]*chat.ChatGroup
		members        map[pair]bool // group, user -> is admin
		messages       map[int]*chat.Message
		lessons        map[int]*lesson.Lesson
		notifications  map[int]*notification.Notification
	}
)

func Open() *DB {
	return &DB{
		users:          make(map[int]*user.User),
		resets:         make(map[string]user.PasswordReset),
		levels:         make(map[int]*directory.Level),
		groups:         make(map[int]*directory.Group),
		subjects:       make(map[int]*directory.Subject),
		teacherSubject: make(pairSet),
		teacherGroup:   make(pairSet),
		teacherStudent: make(pairSet),
		studentTeacher: make(pairSet),
		chatGroups:     make(map[int]*chat.ChatGroup),
		members:        make(map[pair]bool),
		messages:       make(map[int]*chat.Message),
		lessons:        make(map[int]*lesson.Lesson),
		notifications:  make(map[int]*notification.Notification),
	}
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int {
	db.pk++
	return db.pk
}

func (s pairSet) add(a, b int) {
	s[pair{a, b}] = struct{}{}
}

func (s pairSet) has(a, b int) bool {
	_, ok := s[pair{a, b}]
	return ok
}

func (s pairSet) remove(a, b int) {
	delete(s, pair{a, b})
}

func (s pairSet) removeWhere(f func(p pair) bool) {
	for p := range s {
		if f(p) {
			delete(s, p)
		}
	}
}

// sorted returns the pairs ordered by a then b.
func (s pairSet) sorted() []pair {
	pairs := make([]pair, 0, len(s))
	for p := range s {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})
	return pairs
}

func sortedKeys(ids map[int]struct{}) []int {
	keys := make([]int, 0, len(ids))
	for id := range ids {
		keys = append(keys, id)
	}
	sort.Ints(keys)
	return keys
}

func idSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
