package chat

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
)

// Message types
const (
	TypeText = "text"
	TypeFile = "file"
)

type (
	ChatGroup struct {
		ID                int       `db:"id" json:"id"`
		Name              string    `db:"name" json:"name"`
		AllowPrivateChat  bool      `db:"allow_private_chat" json:"allow_private_chat"`
		OnlyAdminsCanSend bool      `db:"only_admins_can_send" json:"only_admins_can_send"`
		CreatedAt         time.Time `db:"created_at" json:"created_at"`
	}

	GroupSummary struct {
		ChatGroup
		MemberCount int `db:"member_count" json:"member_count"`
	}

	Member struct {
		UserID  int    `db:"user_id" json:"user_id"`
		IsAdmin bool   `db:"is_admin" json:"is_admin"`
		Name    string `db:"name" json:"name"`
		Type    string `db:"type" json:"type"`
	}

	GroupDetails struct {
		ChatGroup
		Members []Member `json:"members"`
	}

	// GroupMember is a member as listed in the group's members panel.
	GroupMember struct {
		ID      int         `db:"id" json:"id"`
		Name    string      `db:"name" json:"name"`
		Type    string      `db:"type" json:"type"`
		Avatar  null.String `db:"avatar" json:"avatar"`
		IsAdmin bool        `db:"is_admin" json:"is_admin"`
	}

	// UserGroup is a group as seen by one of its members.
	UserGroup struct {
		ChatGroup
		UnreadCount int       `db:"unread_count" json:"unread_count"`
		LastMsgTime null.Time `db:"last_msg_time" json:"last_msg_time"`
		MyRoleAdmin bool      `db:"my_role_admin" json:"my_role_admin"`
	}

	// Message is either direct (ReceiverID set) or posted to a group (GroupID set), never both.
	Message struct {
		ID           int         `db:"id" json:"id"`
		SenderID     int         `db:"sender_id" json:"sender_id"`
		ReceiverID   null.Int    `db:"receiver_id" json:"receiver_id"`
		GroupID      null.Int    `db:"group_id" json:"group_id"`
		SubjectID    null.Int    `db:"subject_id" json:"subject_id"`
		MessageText  null.String `db:"message_text" json:"message_text"`
		MessageType  string      `db:"message_type" json:"message_type"`
		FilePath     null.String `db:"file_path" json:"file_path"`
		FileName     null.String `db:"file_name" json:"file_name"`
		FileSize     null.Int64  `db:"file_size" json:"file_size"`
		SentAt       time.Time   `db:"sent_at" json:"sent_at"`
		ReadAt       null.Time   `db:"read_at" json:"read_at"`
		SenderName   null.String `db:"sender_name" json:"sender_name"`
		SenderAvatar null.String `db:"sender_avatar" json:"sender_avatar"`
	}

	Contact struct {
		ID          int         `db:"id" json:"id"`
		Name        string      `db:"name" json:"name"`
		Avatar      null.String `db:"avatar" json:"avatar"`
		Type        string      `db:"type" json:"type"`
		LevelName   null.String `db:"level_name" json:"level_name"`
		GroupName   null.String `db:"group_name" json:"group_name"`
		UnreadCount int         `db:"unread_count" json:"unread_count"`
		LastMsgTime null.Time   `db:"last_msg_time" json:"last_msg_time"`
	}

	// Conversation is a direct pair (User1*, User2*) or a group (Group*) with its message stats.
	Conversation struct {
		User1ID       null.Int    `db:"user1_id" json:"user1_id"`
		User1Name     null.String `db:"user1_name" json:"user1_name"`
		User1Type     null.String `db:"user1_type" json:"user1_type"`
		User2ID       null.Int    `db:"user2_id" json:"user2_id"`
		User2Name     null.String `db:"user2_name" json:"user2_name"`
		User2Type     null.String `db:"user2_type" json:"user2_type"`
		MsgCount      int         `db:"msg_count" json:"msg_count"`
		LastMessageAt time.Time   `db:"last_message_at" json:"last_message_at"`
		GroupID       null.Int    `db:"group_id" json:"group_id"`
		GroupName     null.String `db:"group_name" json:"group_name"`
	}

	// InboxMessage is a direct message exchanged with the admin, seen from the other side.
	InboxMessage struct {
		OtherID     int         `db:"other_id"`
		OtherName   string      `db:"other_name"`
		OtherType   string      `db:"other_type"`
		SenderID    int         `db:"sender_id"`
		MessageText null.String `db:"message_text"`
		SentAt      time.Time   `db:"sent_at"`
		ReadAt      null.Time   `db:"read_at"`
	}

	InboxEntry struct {
		ID          int         `json:"id"`
		Name        string      `json:"name"`
		Type        string      `json:"type"`
		LastMessage null.String `json:"last_message"`
		LastTime    time.Time   `json:"last_time"`
		UnreadCount int         `json:"unread_count"`
	}

	// Attachment is an uploaded file already written to the chat storage.
	Attachment struct {
		Path string // stored name
		Name string // original name
		Size int64
	}
)

type (
	MemberData struct {
		UserID  int  `json:"user_id" validate:"required"`
		IsAdmin bool `json:"is_admin"`
	}

	GroupData struct {
		Name              string       `json:"name" validate:"required"`
		AllowPrivate      bool         `json:"allow_private"`
		OnlyAdminsCanSend bool         `json:"only_admins_can_send"`
		Members           []MemberData `json:"members" validate:"dive"`
	}

	Settings struct {
		UserID            int  `json:"user_id" validate:"required"`
		OnlyAdminsCanSend bool `json:"only_admins_can_send"`
	}

	MarkRead struct {
		SenderID int      `json:"sender_id"`
		ReaderID int      `json:"reader_id"`
		GroupID  null.Int `json:"group_id"`
	}

	// NewMessage carries either Text or File.
	NewMessage struct {
		SenderID   int
		ReceiverID null.Int
		GroupID    null.Int
		Text       string
		File       *Attachment
	}

	Broadcast struct {
		SenderID   int
		Recipients []int
		Text       string
		File       *Attachment
	}
)

func (gd *GroupData) Validate(validate *validator.Validate) error {
	gd.Name = core.CleanString(gd.Name)
	return validate.Struct(gd)
}

func (s *Settings) Validate(validate *validator.Validate) error {
	return validate.Struct(s)
}

func (gd GroupData) group() ChatGroup {
	return ChatGroup{
		Name:              gd.Name,
		AllowPrivateChat:  gd.AllowPrivate,
		OnlyAdminsCanSend: gd.OnlyAdminsCanSend,
	}
}

// members dedups members by user, the last entry wins.
func (gd GroupData) members() []MemberData {
	idx := make(map[int]int, len(gd.Members))
	res := make([]MemberData, 0, len(gd.Members))
	for _, m := range gd.Members {
		if i, ok := idx[m.UserID]; ok {
			res[i] = m
			continue
		}
		idx[m.UserID] = len(res)
		res = append(res, m)
	}
	return res
}
