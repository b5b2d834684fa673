package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/user"
)

type chatRepository struct {
	db *DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *DB) *chatRepository {
	return &chatRepository{db: db}
}

// messagesBy returns the matching messages by ascending send time. Must be called with the lock held.
func (db *DB) messagesBy(f func(m *chat.Message) bool) []chat.Message {
	msgs := make([]chat.Message, 0)
	for _, m := range db.messages {
		if f(m) {
			msg := *m
			if u, ok := db.users[m.SenderID]; ok {
				msg.SenderName = null.StringFrom(u.Name)
				msg.SenderAvatar = u.Avatar
			}
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.Before(msgs[j].SentAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs
}

func lastSent(msgs []chat.Message) null.Time {
	if len(msgs) == 0 {
		return null.Time{}
	}
	return null.TimeFrom(msgs[len(msgs)-1].SentAt)
}

func isDirect(m *chat.Message, from, to int) bool {
	return m.ReceiverID.Valid && m.SenderID == from && m.ReceiverID.Int == to
}

// Groups

func (repo *chatRepository) QueryGroups(ctx context.Context) ([]chat.GroupSummary, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]chat.GroupSummary, 0, len(repo.db.chatGroups))
	for _, grp := range repo.db.chatGroups {
		gs := chat.GroupSummary{ChatGroup: *grp}
		for p := range repo.db.members {
			if p.a == grp.ID {
				gs.MemberCount++
			}
		}
		groups = append(groups, gs)
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].CreatedAt.After(groups[j].CreatedAt)
		}
		return groups[i].ID > groups[j].ID
	})
	return groups, nil
}

func (repo *chatRepository) GetGroup(ctx context.Context, id int) (chat.ChatGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if grp, ok := repo.db.chatGroups[id]; ok {
		return *grp, nil
	}
	return chat.ChatGroup{}, chat.ErrGroupNotFound
}

func (repo *chatRepository) GroupMembers(ctx context.Context, groupID int) ([]chat.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	members := make([]chat.Member, 0)
	for p, isAdmin := range repo.db.members {
		if u, ok := repo.db.users[p.b]; ok && p.a == groupID {
			members = append(members, chat.Member{UserID: u.ID, IsAdmin: isAdmin, Name: u.Name, Type: u.Type})
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].UserID < members[j].UserID
	})
	return members, nil
}

func (repo *chatRepository) GetMember(ctx context.Context, groupID, userID int) (chat.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	isAdmin, ok := repo.db.members[pair{groupID, userID}]
	u, uok := repo.db.users[userID]
	if !ok || !uok {
		return chat.Member{}, chat.ErrMemberNotFound
	}
	return chat.Member{UserID: userID, IsAdmin: isAdmin, Name: u.Name, Type: u.Type}, nil
}

func (repo *chatRepository) ListGroupMembers(ctx context.Context, groupID int) ([]chat.GroupMember, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	members := make([]chat.GroupMember, 0)
	for p, isAdmin := range repo.db.members {
		if u, ok := repo.db.users[p.b]; ok && p.a == groupID {
			members = append(members, chat.GroupMember{ID: u.ID, Name: u.Name, Type: u.Type, Avatar: u.Avatar, IsAdmin: isAdmin})
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].IsAdmin != members[j].IsAdmin {
			return members[i].IsAdmin
		}
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func (repo *chatRepository) SaveGroup(ctx context.Context, grp chat.ChatGroup, members []chat.MemberData) (chat.ChatGroup, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if grp.ID == 0 {
		grp.ID = repo.db.nextPK()
	} else if _, ok := repo.db.chatGroups[grp.ID]; !ok {
		return chat.ChatGroup{}, chat.ErrGroupNotFound
	}
	repo.db.chatGroups[grp.ID] = &grp

	for p := range repo.db.members {
		if p.a == grp.ID {
			delete(repo.db.members, p)
		}
	}
	for _, m := range members {
		if _, ok := repo.db.users[m.UserID]; ok {
			repo.db.members[pair{grp.ID, m.UserID}] = m.IsAdmin
		}
	}
	return grp, nil
}

func (repo *chatRepository) SetOnlyAdminsCanSend(ctx context.Context, groupID int, onlyAdmins bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	grp, ok := repo.db.chatGroups[groupID]
	if !ok {
		return chat.ErrGroupNotFound
	}
	grp.OnlyAdminsCanSend = onlyAdmins
	return nil
}

// deleteGroups must be called with the write lock held.
func (db *DB) deleteGroups(ids ...int) {
	del := idSet(ids)
	for id := range del {
		delete(db.chatGroups, id)
	}
	for p := range db.members {
		if _, ok := del[p.a]; ok {
			delete(db.members, p)
		}
	}
	for id, m := range db.messages {
		if _, ok := del[m.GroupID.Int]; ok && m.GroupID.Valid {
			delete(db.messages, id)
		}
	}
}

func (repo *chatRepository) DeleteGroup(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.chatGroups[id]; !ok {
		return chat.ErrGroupNotFound
	}
	repo.db.deleteGroups(id)
	return nil
}

func (repo *chatRepository) DeleteGroups(ctx context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.deleteGroups(ids...)
	return nil
}

func (repo *chatRepository) UserGroups(ctx context.Context, userID int) ([]chat.UserGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]chat.UserGroup, 0)
	for p, isAdmin := range repo.db.members {
		grp, ok := repo.db.chatGroups[p.a]
		if !ok || p.b != userID {
			continue
		}
		msgs := repo.db.messagesBy(func(m *chat.Message) bool { return m.GroupID.Valid && m.GroupID.Int == grp.ID })
		ug := chat.UserGroup{ChatGroup: *grp, LastMsgTime: lastSent(msgs), MyRoleAdmin: isAdmin}
		for _, m := range msgs {
			if !m.ReadAt.Valid && m.SenderID != userID {
				ug.UnreadCount++
			}
		}
		groups = append(groups, ug)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (repo *chatRepository) GroupMessages(ctx context.Context, groupID int) ([]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.messagesBy(func(m *chat.Message) bool { return m.GroupID.Valid && m.GroupID.Int == groupID }), nil
}

// Contacts

// contact must be called with the lock held.
func (db *DB) contact(u *user.User, viewerID int) chat.Contact {
	c := chat.Contact{ID: u.ID, Name: u.Name, Avatar: u.Avatar, Type: u.Type}
	msgs := db.messagesBy(func(m *chat.Message) bool {
		return isDirect(m, u.ID, viewerID) || isDirect(m, viewerID, u.ID)
	})
	c.LastMsgTime = lastSent(msgs)
	for _, m := range msgs {
		if m.SenderID == u.ID && !m.ReadAt.Valid {
			c.UnreadCount++
		}
	}
	return c
}

func (repo *chatRepository) TeacherContacts(ctx context.Context, teacherID int) ([]chat.Contact, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := repo.db.usersBy(func(u *user.User) bool {
		return u.IsStudent() && repo.db.studentTeacher.has(u.ID, teacherID)
	})
	contacts := make([]chat.Contact, 0, len(students))
	for i := range students {
		c := repo.db.contact(&students[i], teacherID)
		c.LevelName = repo.db.levelName(students[i].LevelID)
		c.GroupName = repo.db.groupName(students[i].GroupID)
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func (repo *chatRepository) AdminContacts(ctx context.Context, viewerID int) ([]chat.Contact, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	admins := repo.db.usersBy(func(u *user.User) bool { return u.IsAdmin() })
	contacts := make([]chat.Contact, 0, len(admins))
	for i := range admins {
		contacts = append(contacts, repo.db.contact(&admins[i], viewerID))
	}
	return contacts, nil
}

func (repo *chatRepository) StudentContacts(ctx context.Context, studentID int) ([]chat.Contact, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	teachers := repo.db.usersBy(func(u *user.User) bool {
		return u.IsTeacher() && repo.db.studentTeacher.has(studentID, u.ID)
	})
	contacts := make([]chat.Contact, 0, len(teachers))
	for i := range teachers {
		var subjects []string
		for _, p := range repo.db.teacherSubject.sorted() {
			if sub, ok := repo.db.subjects[p.b]; ok && p.a == teachers[i].ID {
				subjects = append(subjects, sub.Name)
			}
		}
		sort.Strings(subjects)

		c := repo.db.contact(&teachers[i], studentID)
		c.LevelName = null.NewString(strings.Join(subjects, ", "), len(subjects) > 0)
		c.GroupName = null.StringFrom("")
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// Messages

func (repo *chatRepository) DirectMessages(ctx context.Context, u1, u2 int) ([]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.db.messagesBy(func(m *chat.Message) bool {
		return isDirect(m, u1, u2) || isDirect(m, u2, u1)
	}), nil
}

func (repo *chatRepository) MarkDirectRead(ctx context.Context, senderID, readerID int, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, m := range repo.db.messages {
		if isDirect(m, senderID, readerID) && !m.ReadAt.Valid {
			m.ReadAt = null.TimeFrom(at)
		}
	}
	return nil
}

// insertMessage must be called with the write lock held.
func (db *DB) insertMessage(msg chat.Message) (chat.Message, error) {
	if msg.GroupID.Valid {
		if _, ok := db.chatGroups[msg.GroupID.Int]; !ok {
			return chat.Message{}, chat.ErrGroupNotFound
		}
	}
	msg.ID = db.nextPK()
	msg.SenderName = null.String{}
	msg.SenderAvatar = null.String{}
	db.messages[msg.ID] = &msg
	return msg, nil
}

func (repo *chatRepository) InsertMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	return repo.db.insertMessage(msg)
}

func (repo *chatRepository) InsertBroadcast(ctx context.Context, msgs []chat.Message, notes []notification.Notification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, msg := range msgs {
		if _, err := repo.db.insertMessage(msg); err != nil {
			return err
		}
	}
	repo.db.insertNotifications(notes...)
	return nil
}

func (repo *chatRepository) DeleteMessage(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.messages[id]; !ok {
		return chat.ErrMessageNotFound
	}
	delete(repo.db.messages, id)
	return nil
}

// Admin overviews

func (repo *chatRepository) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	direct := make(map[pair]*chat.Conversation)
	groups := make(map[int]*chat.Conversation)
	convs := make([]*chat.Conversation, 0)
	track := func(c *chat.Conversation, sentAt time.Time) {
		c.MsgCount++
		if sentAt.After(c.LastMessageAt) {
			c.LastMessageAt = sentAt
		}
	}

	for _, m := range repo.db.messages {
		if m.GroupID.Valid {
			grp, ok := repo.db.chatGroups[m.GroupID.Int]
			if !ok {
				continue
			}
			c, ok := groups[grp.ID]
			if !ok {
				c = &chat.Conversation{GroupID: null.IntFrom(grp.ID), GroupName: null.StringFrom(grp.Name)}
				groups[grp.ID] = c
				convs = append(convs, c)
			}
			track(c, m.SentAt)
			continue
		}

		u1, ok1 := repo.db.users[m.SenderID]
		u2, ok2 := repo.db.users[m.ReceiverID.Int]
		if !ok1 || !ok2 {
			continue
		}
		if u1.ID > u2.ID {
			u1, u2 = u2, u1
		}
		c, ok := direct[pair{u1.ID, u2.ID}]
		if !ok {
			c = &chat.Conversation{
				User1ID:   null.IntFrom(u1.ID),
				User1Name: null.StringFrom(u1.Name),
				User1Type: null.StringFrom(u1.Type),
				User2ID:   null.IntFrom(u2.ID),
				User2Name: null.StringFrom(u2.Name),
				User2Type: null.StringFrom(u2.Type),
			}
			direct[pair{u1.ID, u2.ID}] = c
			convs = append(convs, c)
		}
		track(c, m.SentAt)
	}

	res := make([]chat.Conversation, 0, len(convs))
	for _, c := range convs {
		res = append(res, *c)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].LastMessageAt.After(res[j].LastMessageAt) })
	return res, nil
}

func (repo *chatRepository) AdminInbox(ctx context.Context) ([]chat.InboxMessage, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	admins := repo.db.usersBy(func(u *user.User) bool { return u.IsAdmin() })
	if len(admins) == 0 {
		return []chat.InboxMessage{}, nil
	}
	adminID := admins[0].ID
	for _, a := range admins {
		if a.ID < adminID {
			adminID = a.ID
		}
	}

	msgs := repo.db.messagesBy(func(m *chat.Message) bool {
		return m.ReceiverID.Valid && (m.SenderID == adminID || m.ReceiverID.Int == adminID)
	})
	inbox := make([]chat.InboxMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		otherID := m.SenderID
		if otherID == adminID {
			otherID = m.ReceiverID.Int
		}
		other, ok := repo.db.users[otherID]
		if !ok || other.IsAdmin() {
			continue
		}
		inbox = append(inbox, chat.InboxMessage{
			OtherID:     other.ID,
			OtherName:   other.Name,
			OtherType:   other.Type,
			SenderID:    m.SenderID,
			MessageText: m.MessageText,
			SentAt:      m.SentAt,
			ReadAt:      m.ReadAt,
		})
	}
	return inbox, nil
}
