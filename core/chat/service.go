package chat

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/user"
)

const (
	adminLevelName = "إدارة"

	directTextNotice = "لديك رسالة جديدة من الإدارة"
	directFileNotice = "أرسلت الإدارة ملفاً جديداً"
	broadcastNotice  = "رسالة تعميم جديدة من الإدارة"
)

var (
	// errors
	ErrGroupNotFound   = core.NotFound("Not found")
	ErrNotGroupAdmin   = core.Forbidden("Unauthorized")
	ErrRestricted      = core.Forbidden("Restricted")
	ErrInvalidTarget   = core.BadRequest("exactly one of receiver_id or group_id is required")
	ErrEmptyMessage    = core.BadRequest("message_text is required")
	ErrNoFile          = core.BadRequest("No file")
	ErrNoRecipients    = core.BadRequest("recipients are required")
	ErrEmptyBroadcast  = core.BadRequest("message_text or file is required")
	ErrMessageNotFound = core.NotFound("message not found")
	ErrMemberNotFound  = errors.New("member not found")
)

var nowFunc = time.Now // mockable

type (
	Repository interface {
		QueryGroups(ctx context.Context) ([]GroupSummary, error)
		GetGroup(ctx context.Context, id int) (ChatGroup, error)
		GroupMembers(ctx context.Context, groupID int) ([]Member, error)
		// GetMember returns ErrMemberNotFound when userID is not a member of groupID.
		GetMember(ctx context.Context, groupID, userID int) (Member, error)
		ListGroupMembers(ctx context.Context, groupID int) ([]GroupMember, error)
		// SaveGroup inserts (ID == 0) or updates grp and replaces its member list, atomically.
		SaveGroup(ctx context.Context, grp ChatGroup, members []MemberData) (ChatGroup, error)
		SetOnlyAdminsCanSend(ctx context.Context, groupID int, onlyAdmins bool) error
		// DeleteGroup removes the group with its members and messages, atomically.
		DeleteGroup(ctx context.Context, id int) error
		DeleteGroups(ctx context.Context, ids ...int) error
		UserGroups(ctx context.Context, userID int) ([]UserGroup, error)
		GroupMessages(ctx context.Context, groupID int) ([]Message, error)

		TeacherContacts(ctx context.Context, teacherID int) ([]Contact, error)
		AdminContacts(ctx context.Context, viewerID int) ([]Contact, error)
		StudentContacts(ctx context.Context, studentID int) ([]Contact, error)
		DirectMessages(ctx context.Context, u1, u2 int) ([]Message, error)
		MarkDirectRead(ctx context.Context, senderID, readerID int, at time.Time) error

		InsertMessage(ctx context.Context, msg Message) (Message, error)
		// InsertBroadcast inserts messages & notifications, atomically.
		InsertBroadcast(ctx context.Context, msgs []Message, notes []notification.Notification) error
		DeleteMessage(ctx context.Context, id int) error

		Conversations(ctx context.Context) ([]Conversation, error)
		// AdminInbox returns the direct messages of the first admin with non-admins, newest first.
		AdminInbox(ctx context.Context) ([]InboxMessage, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id int) (user.User, error)
	}

	Notifier interface {
		Notify(ctx context.Context, nns ...notification.NewNotification) error
	}

	Service struct {
		repo     Repository
		users    UserGetter
		notifier Notifier
	}
)

func NewService(repo Repository, users UserGetter, notifier Notifier) *Service {
	return &Service{repo: repo, users: users, notifier: notifier}
}

// Groups

func (svc *Service) QueryGroups(ctx context.Context) ([]GroupSummary, error) {
	return svc.repo.QueryGroups(ctx)
}

func (svc *Service) GroupDetails(ctx context.Context, id int) (GroupDetails, error) {
	grp, err := svc.repo.GetGroup(ctx, id)
	if err != nil {
		return GroupDetails{}, err
	}
	members, err := svc.repo.GroupMembers(ctx, id)
	if err != nil {
		return GroupDetails{}, errors.Wrap(err, "querying members")
	}
	return GroupDetails{ChatGroup: grp, Members: members}, nil
}

func (svc *Service) ListGroupMembers(ctx context.Context, groupID int) ([]GroupMember, error) {
	return svc.repo.ListGroupMembers(ctx, groupID)
}

func (svc *Service) CreateGroup(ctx context.Context, gd GroupData) (ChatGroup, error) {
	grp := gd.group()
	grp.CreatedAt = nowFunc().UTC()
	return svc.repo.SaveGroup(ctx, grp, gd.members())
}

// UpdateGroup replaces the group fields and its whole member list.
func (svc *Service) UpdateGroup(ctx context.Context, id int, gd GroupData) error {
	orig, err := svc.repo.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	grp := gd.group()
	grp.ID = id
	grp.CreatedAt = orig.CreatedAt
	_, err = svc.repo.SaveGroup(ctx, grp, gd.members())
	return err
}

// UpdateSettings toggles only-admins-can-send; only a group admin may do it.
func (svc *Service) UpdateSettings(ctx context.Context, groupID int, s Settings) error {
	m, err := svc.repo.GetMember(ctx, groupID, s.UserID)
	if err != nil {
		if errors.Cause(err) == ErrMemberNotFound {
			return ErrNotGroupAdmin
		}
		return errors.Wrap(err, "finding member")
	}
	if !m.IsAdmin {
		return ErrNotGroupAdmin
	}
	return svc.repo.SetOnlyAdminsCanSend(ctx, groupID, s.OnlyAdminsCanSend)
}

func (svc *Service) DeleteGroup(ctx context.Context, id int) error {
	return svc.repo.DeleteGroup(ctx, id)
}

func (svc *Service) DeleteGroups(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteGroups(ctx, ids...)
}

// UserGroups returns the groups of a user, the most recently active first; groups without messages come last.
func (svc *Service) UserGroups(ctx context.Context, userID int) ([]UserGroup, error) {
	groups, err := svc.repo.UserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return newerFirst(groups[i].LastMsgTime, groups[j].LastMsgTime)
	})
	return groups, nil
}

func (svc *Service) GroupMessages(ctx context.Context, groupID int) ([]Message, error) {
	return svc.repo.GroupMessages(ctx, groupID)
}

// Contacts

// TeacherContacts returns the students linked to a teacher plus every admin.
func (svc *Service) TeacherContacts(ctx context.Context, teacherID int) ([]Contact, error) {
	students, err := svc.repo.TeacherContacts(ctx, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying linked students")
	}
	admins, err := svc.repo.AdminContacts(ctx, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying admins")
	}
	for i := range admins {
		admins[i].LevelName = null.StringFrom(adminLevelName)
		admins[i].GroupName = null.StringFrom("")
	}
	return sortContacts(append(students, admins...)), nil
}

// StudentContacts returns the teachers linked to a student. Admins are not part of it.
func (svc *Service) StudentContacts(ctx context.Context, studentID int) ([]Contact, error) {
	teachers, err := svc.repo.StudentContacts(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying linked teachers")
	}
	return sortContacts(teachers), nil
}

func sortContacts(contacts []Contact) []Contact {
	sort.SliceStable(contacts, func(i, j int) bool {
		return newerFirst(contacts[i].LastMsgTime, contacts[j].LastMsgTime)
	})
	return contacts
}

// newerFirst orders times descending, invalid ones last.
func newerFirst(a, b null.Time) bool {
	if !a.Valid {
		return false
	}
	if !b.Valid {
		return true
	}
	return a.Time.After(b.Time)
}

// Messages

func (svc *Service) Conversation(ctx context.Context, u1, u2 int) ([]Message, error) {
	return svc.repo.DirectMessages(ctx, u1, u2)
}

// MarkRead marks the direct messages from sender to reader as read.
// Group messages have no per-reader state: marking them is a no-op.
func (svc *Service) MarkRead(ctx context.Context, mr MarkRead) error {
	if mr.GroupID.Valid && mr.GroupID.Int != 0 {
		return nil
	}
	return svc.repo.MarkDirectRead(ctx, mr.SenderID, mr.ReaderID, nowFunc().UTC())
}

// Send posts a text or file message. In only-admins-can-send groups the sender must be an admin user
// or a group admin. A direct message from an admin to a non-admin notifies the receiver.
func (svc *Service) Send(ctx context.Context, nm NewMessage) (Message, error) {
	hasReceiver := nm.ReceiverID.Valid && nm.ReceiverID.Int != 0
	hasGroup := nm.GroupID.Valid && nm.GroupID.Int != 0
	if hasReceiver == hasGroup {
		return Message{}, ErrInvalidTarget
	}

	msg := Message{SenderID: nm.SenderID, SentAt: nowFunc().UTC()}
	if nm.File != nil {
		msg.MessageType = TypeFile
		msg.FilePath = null.StringFrom(nm.File.Path)
		msg.FileName = null.StringFrom(nm.File.Name)
		msg.FileSize = null.Int64From(nm.File.Size)
	} else {
		if core.CleanString(nm.Text) == "" {
			return Message{}, ErrEmptyMessage
		}
		msg.MessageType = TypeText
		msg.MessageText = null.StringFrom(nm.Text)
	}

	sender, err := svc.users.GetByID(ctx, nm.SenderID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return Message{}, errors.Wrap(err, "finding sender")
	}

	if hasGroup {
		if err = svc.checkCanPost(ctx, nm.GroupID.Int, sender, nm.SenderID); err != nil {
			return Message{}, err
		}
		msg.GroupID = null.IntFrom(nm.GroupID.Int)
		return svc.repo.InsertMessage(ctx, msg)
	}

	msg.ReceiverID = null.IntFrom(nm.ReceiverID.Int)
	if msg, err = svc.repo.InsertMessage(ctx, msg); err != nil {
		return Message{}, err
	}

	if sender.IsAdmin() {
		receiver, err := svc.users.GetByID(ctx, nm.ReceiverID.Int)
		if err == nil && !receiver.IsAdmin() {
			notice := directTextNotice
			if msg.MessageType == TypeFile {
				notice = directFileNotice
			}
			err = svc.notifier.Notify(ctx, notification.NewNotification{
				UserID:  receiver.ID,
				Message: notice,
				Link:    notification.ChatLink(sender.ID),
			})
		}
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return msg, errors.Wrap(err, "notifying receiver")
		}
	}
	return msg, nil
}

func (svc *Service) checkCanPost(ctx context.Context, groupID int, sender user.User, senderID int) error {
	grp, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !grp.OnlyAdminsCanSend || sender.IsAdmin() {
		return nil
	}
	m, err := svc.repo.GetMember(ctx, groupID, senderID)
	if err != nil {
		if errors.Cause(err) == ErrMemberNotFound {
			return ErrRestricted
		}
		return errors.Wrap(err, "finding member")
	}
	if !m.IsAdmin {
		return ErrRestricted
	}
	return nil
}

// Broadcast sends a text and/or a file to every recipient, each also getting a notification.
func (svc *Service) Broadcast(ctx context.Context, b Broadcast) error {
	recipients := core.UniqueIDs(b.Recipients)
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	text := core.CleanString(b.Text)
	if text == "" && b.File == nil {
		return ErrEmptyBroadcast
	}

	now := nowFunc().UTC()
	link := notification.ChatLink(b.SenderID)
	msgs := make([]Message, 0, 2*len(recipients))
	nns := make([]notification.NewNotification, 0, len(recipients))
	for _, rid := range recipients {
		if text != "" {
			msgs = append(msgs, Message{
				SenderID:    b.SenderID,
				ReceiverID:  null.IntFrom(rid),
				MessageText: null.StringFrom(b.Text),
				MessageType: TypeText,
				SentAt:      now,
			})
		}
		if b.File != nil {
			msgs = append(msgs, Message{
				SenderID:    b.SenderID,
				ReceiverID:  null.IntFrom(rid),
				MessageType: TypeFile,
				FilePath:    null.StringFrom(b.File.Path),
				FileName:    null.StringFrom(b.File.Name),
				FileSize:    null.Int64From(b.File.Size),
				SentAt:      now,
			})
		}
		nns = append(nns, notification.NewNotification{UserID: rid, Message: broadcastNotice, Link: link})
	}
	return svc.repo.InsertBroadcast(ctx, msgs, notification.Build(now, nns...))
}

func (svc *Service) DeleteMessage(ctx context.Context, id int) error {
	return svc.repo.DeleteMessage(ctx, id)
}

// Admin overviews

func (svc *Service) Conversations(ctx context.Context) ([]Conversation, error) {
	return svc.repo.Conversations(ctx)
}

// InboxSummary returns, per non-admin counterpart of the admin, the last message exchanged
// and the number of unread messages received from them.
func (svc *Service) InboxSummary(ctx context.Context) ([]InboxEntry, error) {
	msgs, err := svc.repo.AdminInbox(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]InboxEntry, 0)
	idx := make(map[int]int)
	for _, m := range msgs {
		i, ok := idx[m.OtherID]
		if !ok {
			i = len(entries)
			idx[m.OtherID] = i
			entries = append(entries, InboxEntry{
				ID:          m.OtherID,
				Name:        m.OtherName,
				Type:        m.OtherType,
				LastMessage: m.MessageText,
				LastTime:    m.SentAt,
			})
		}
		if m.SenderID == m.OtherID && !m.ReadAt.Valid {
			entries[i].UnreadCount++
		}
	}
	return entries, nil
}
