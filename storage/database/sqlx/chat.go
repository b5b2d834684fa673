package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/storage/database"
)

const chatGroupColumns = `g.id, g.name, g.allow_private_chat, g.only_admins_can_send, g.created_at`

const messageQuery = `SELECT m.id, m.sender_id, m.receiver_id, m.group_id, m.subject_id, m.message_text, m.message_type,
		m.file_path, m.file_name, m.file_size, m.sent_at, m.read_at, u.name AS sender_name, u.avatar AS sender_avatar
	FROM messages m LEFT JOIN users u ON u.id = m.sender_id`

// contactColumns expects the contact as u and the viewer as $1.
const contactColumns = `u.id, u.name, u.avatar, u.type,
	(SELECT COUNT(*) FROM messages WHERE sender_id = u.id AND receiver_id = $1 AND read_at IS NULL) AS unread_count,
	(SELECT MAX(sent_at) FROM messages
		WHERE (sender_id = u.id AND receiver_id = $1) OR (sender_id = $1 AND receiver_id = u.id)) AS last_msg_time`

const insertMessage = `INSERT INTO messages (sender_id, receiver_id, group_id, subject_id, message_text, message_type,
		file_path, file_name, file_size, sent_at)
	VALUES (:sender_id, :receiver_id, :group_id, :subject_id, :message_text, :message_type,
		:file_path, :file_name, :file_size, :sent_at)
	RETURNING id`

type chatRepository struct {
	db *sqlx.DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *sqlx.DB) *chatRepository {
	return &chatRepository{db: db}
}

// Groups

func (repo *chatRepository) QueryGroups(ctx context.Context) ([]chat.GroupSummary, error) {
	groups := make([]chat.GroupSummary, 0)
	err := repo.db.SelectContext(ctx, &groups, `SELECT `+chatGroupColumns+`,
			(SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id) AS member_count
		FROM chat_groups g ORDER BY g.created_at DESC, g.id DESC`)
	return groups, errors.Wrap(err, "querying chat groups")
}

func (repo *chatRepository) GetGroup(ctx context.Context, id int) (chat.ChatGroup, error) {
	var grp chat.ChatGroup
	if err := repo.db.GetContext(ctx, &grp, `SELECT `+chatGroupColumns+` FROM chat_groups g WHERE g.id = $1`, id); err != nil {
		return chat.ChatGroup{}, trapNoRowsErr(err, chat.ErrGroupNotFound)
	}
	return grp, nil
}

func (repo *chatRepository) GroupMembers(ctx context.Context, groupID int) ([]chat.Member, error) {
	members := make([]chat.Member, 0)
	err := repo.db.SelectContext(ctx, &members, `SELECT gm.user_id, gm.is_admin, u.name, u.type
		FROM group_members gm JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1 ORDER BY u.name, u.id`, groupID)
	return members, errors.Wrap(err, "querying group members")
}

func (repo *chatRepository) GetMember(ctx context.Context, groupID, userID int) (chat.Member, error) {
	var m chat.Member
	err := repo.db.GetContext(ctx, &m, `SELECT gm.user_id, gm.is_admin, u.name, u.type
		FROM group_members gm JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1 AND gm.user_id = $2`, groupID, userID)
	if err != nil {
		return chat.Member{}, trapNoRowsErr(err, chat.ErrMemberNotFound)
	}
	return m, nil
}

func (repo *chatRepository) ListGroupMembers(ctx context.Context, groupID int) ([]chat.GroupMember, error) {
	members := make([]chat.GroupMember, 0)
	err := repo.db.SelectContext(ctx, &members, `SELECT u.id, u.name, u.type, u.avatar, gm.is_admin
		FROM group_members gm JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1 ORDER BY gm.is_admin DESC, u.name ASC, u.id`, groupID)
	return members, errors.Wrap(err, "querying group members")
}

func (repo *chatRepository) SaveGroup(ctx context.Context, grp chat.ChatGroup, members []chat.MemberData) (chat.ChatGroup, error) {
	err := database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if grp.ID == 0 {
			err := tx.GetContext(ctx, &grp.ID, `INSERT INTO chat_groups (name, allow_private_chat, only_admins_can_send, created_at)
				VALUES ($1, $2, $3, $4) RETURNING id`, grp.Name, grp.AllowPrivateChat, grp.OnlyAdminsCanSend, grp.CreatedAt)
			if err != nil {
				return errors.Wrap(err, "inserting chat group")
			}
		} else {
			res, err := tx.ExecContext(ctx, `UPDATE chat_groups SET name = $1, allow_private_chat = $2, only_admins_can_send = $3
				WHERE id = $4`, grp.Name, grp.AllowPrivateChat, grp.OnlyAdminsCanSend, grp.ID)
			if err != nil {
				return errors.Wrap(err, "updating chat group")
			}
			if err = checkAffected(res, chat.ErrGroupNotFound); err != nil {
				return err
			}
			if _, err = tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, grp.ID); err != nil {
				return errors.Wrap(err, "clearing group members")
			}
		}

		userIDs := make([]int, 0, len(members))
		admins := make([]bool, 0, len(members))
		for _, m := range members {
			userIDs = append(userIDs, m.UserID)
			admins = append(admins, m.IsAdmin)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, is_admin)
			SELECT $1, m.user_id, m.is_admin
			FROM unnest($2::int[], $3::bool[]) AS m (user_id, is_admin)
			JOIN users u ON u.id = m.user_id`, grp.ID, pq.Array(userIDs), pq.Array(admins))
		return errors.Wrap(err, "inserting group members")
	})
	if err != nil {
		return chat.ChatGroup{}, err
	}
	return grp, nil
}

func (repo *chatRepository) SetOnlyAdminsCanSend(ctx context.Context, groupID int, onlyAdmins bool) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE chat_groups SET only_admins_can_send = $1 WHERE id = $2`, onlyAdmins, groupID)
	if err != nil {
		return errors.Wrap(err, "updating group settings")
	}
	return checkAffected(res, chat.ErrGroupNotFound)
}

func deleteGroups(ctx context.Context, tx *sqlx.Tx, ids []int) (int64, error) {
	arr := pq.Array(ids)
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE group_id = ANY($1)`, arr); err != nil {
		return 0, errors.Wrap(err, "deleting group messages")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ANY($1)`, arr); err != nil {
		return 0, errors.Wrap(err, "deleting group members")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_groups WHERE id = ANY($1)`, arr)
	if err != nil {
		return 0, errors.Wrap(err, "deleting chat groups")
	}
	return res.RowsAffected()
}

func (repo *chatRepository) DeleteGroup(ctx context.Context, id int) error {
	return database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := deleteGroups(ctx, tx, []int{id})
		if err != nil {
			return err
		}
		if n == 0 {
			return chat.ErrGroupNotFound
		}
		return nil
	})
}

func (repo *chatRepository) DeleteGroups(ctx context.Context, ids ...int) error {
	return database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := deleteGroups(ctx, tx, ids)
		return err
	})
}

func (repo *chatRepository) UserGroups(ctx context.Context, userID int) ([]chat.UserGroup, error) {
	groups := make([]chat.UserGroup, 0)
	err := repo.db.SelectContext(ctx, &groups, `SELECT `+chatGroupColumns+`,
			(SELECT COUNT(*) FROM messages m WHERE m.group_id = g.id AND m.read_at IS NULL AND m.sender_id != $1) AS unread_count,
			(SELECT MAX(m.sent_at) FROM messages m WHERE m.group_id = g.id) AS last_msg_time,
			gm.is_admin AS my_role_admin
		FROM chat_groups g JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.id`, userID)
	return groups, errors.Wrap(err, "querying user groups")
}

func (repo *chatRepository) GroupMessages(ctx context.Context, groupID int) ([]chat.Message, error) {
	msgs := make([]chat.Message, 0)
	err := repo.db.SelectContext(ctx, &msgs, messageQuery+` WHERE m.group_id = $1 ORDER BY m.sent_at, m.id`, groupID)
	return msgs, errors.Wrap(err, "querying group messages")
}

// Contacts

func (repo *chatRepository) TeacherContacts(ctx context.Context, teacherID int) ([]chat.Contact, error) {
	contacts := make([]chat.Contact, 0)
	err := repo.db.SelectContext(ctx, &contacts, `SELECT `+contactColumns+`, l.name AS level_name, g.name AS group_name
		FROM student_teacher_links stl
		JOIN users u ON u.id = stl.student_id
		LEFT JOIN levels l ON l.id = u.level_id
		LEFT JOIN class_groups g ON g.id = u.group_id
		WHERE stl.teacher_id = $1 AND u.type = 'student'
		ORDER BY u.name, u.id`, teacherID)
	return contacts, errors.Wrap(err, "querying teacher contacts")
}

func (repo *chatRepository) AdminContacts(ctx context.Context, viewerID int) ([]chat.Contact, error) {
	contacts := make([]chat.Contact, 0)
	err := repo.db.SelectContext(ctx, &contacts, `SELECT `+contactColumns+`
		FROM users u WHERE u.type = 'admin' ORDER BY u.name, u.id`, viewerID)
	return contacts, errors.Wrap(err, "querying admin contacts")
}

func (repo *chatRepository) StudentContacts(ctx context.Context, studentID int) ([]chat.Contact, error) {
	contacts := make([]chat.Contact, 0)
	err := repo.db.SelectContext(ctx, &contacts, `SELECT `+contactColumns+`,
			(SELECT string_agg(s.name, ', ' ORDER BY s.name) FROM teacher_subjects ts
				JOIN subjects s ON s.id = ts.subject_id WHERE ts.teacher_id = u.id) AS level_name,
			'' AS group_name
		FROM student_teacher_links stl
		JOIN users u ON u.id = stl.teacher_id
		WHERE stl.student_id = $1 AND u.type = 'teacher'
		ORDER BY u.name, u.id`, studentID)
	return contacts, errors.Wrap(err, "querying student contacts")
}

// Messages

func (repo *chatRepository) DirectMessages(ctx context.Context, u1, u2 int) ([]chat.Message, error) {
	msgs := make([]chat.Message, 0)
	err := repo.db.SelectContext(ctx, &msgs, messageQuery+`
		WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.sent_at, m.id`, u1, u2)
	return msgs, errors.Wrap(err, "querying direct messages")
}

func (repo *chatRepository) MarkDirectRead(ctx context.Context, senderID, readerID int, at time.Time) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE messages SET read_at = $1
		WHERE sender_id = $2 AND receiver_id = $3 AND read_at IS NULL`, at, senderID, readerID)
	return errors.Wrap(err, "marking messages read")
}

func namedInsert(ctx context.Context, ext sqlx.QueryerContext, query string, arg interface{}) (int, error) {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return 0, errors.Wrap(err, "binding named query")
	}
	var id int
	err = sqlx.GetContext(ctx, ext, &id, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	return id, err
}

func (repo *chatRepository) InsertMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	id, err := namedInsert(ctx, repo.db, insertMessage, msg)
	if err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == "23503" { // foreign_key_violation
			return chat.Message{}, chat.ErrGroupNotFound
		}
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	msg.ID = id
	return msg, nil
}

func (repo *chatRepository) InsertBroadcast(ctx context.Context, msgs []chat.Message, notes []notification.Notification) error {
	return database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, msg := range msgs {
			if _, err := namedInsert(ctx, tx, insertMessage, msg); err != nil {
				return errors.Wrap(err, "inserting message")
			}
		}
		return insertNotifications(ctx, tx, notes)
	})
}

func (repo *chatRepository) DeleteMessage(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting message")
	}
	return checkAffected(res, chat.ErrMessageNotFound)
}

// Admin overviews

func (repo *chatRepository) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	convs := make([]chat.Conversation, 0)
	err := repo.db.SelectContext(ctx, &convs, `SELECT u1.id AS user1_id, u1.name AS user1_name, u1.type AS user1_type,
			u2.id AS user2_id, u2.name AS user2_name, u2.type AS user2_type,
			d.msg_count, d.last_message_at, NULL::int AS group_id, NULL::text AS group_name
		FROM (
			SELECT LEAST(sender_id, receiver_id) AS a, GREATEST(sender_id, receiver_id) AS b,
				COUNT(*) AS msg_count, MAX(sent_at) AS last_message_at
			FROM messages WHERE group_id IS NULL
			GROUP BY 1, 2
		) d
		JOIN users u1 ON u1.id = d.a
		JOIN users u2 ON u2.id = d.b
		UNION ALL
		SELECT NULL, NULL, NULL, NULL, NULL, NULL, COUNT(m.id), MAX(m.sent_at), g.id, g.name
		FROM messages m JOIN chat_groups g ON g.id = m.group_id
		GROUP BY g.id, g.name
		ORDER BY last_message_at DESC`)
	return convs, errors.Wrap(err, "querying conversations")
}

func (repo *chatRepository) AdminInbox(ctx context.Context) ([]chat.InboxMessage, error) {
	msgs := make([]chat.InboxMessage, 0)
	err := repo.db.SelectContext(ctx, &msgs, `WITH admin AS (SELECT MIN(id) AS id FROM users WHERE type = 'admin')
		SELECT u.id AS other_id, u.name AS other_name, u.type AS other_type,
			m.sender_id, m.message_text, m.sent_at, m.read_at
		FROM messages m, admin a, users u
		WHERE m.group_id IS NULL
			AND ((m.sender_id = a.id AND u.id = m.receiver_id) OR (m.receiver_id = a.id AND u.id = m.sender_id))
			AND u.type != 'admin'
		ORDER BY m.sent_at DESC, m.id DESC`)
	return msgs, errors.Wrap(err, "querying admin inbox")
}
