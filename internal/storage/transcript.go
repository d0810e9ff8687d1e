package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"chatwire/internal/chat"
)

// ConversationSummary is a cached conversation as listed from the
// transcript table.
type ConversationSummary struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SaveExchange stores the messages of one completed exchange. Message
// ids are stable, so re-saving an exchange overwrites rather than
// duplicates.
func (db *DB) SaveExchange(conversationID string, msgs []chat.Message) error {
	return db.WithTx(func(tx *sql.Tx) error {
		for _, m := range msgs {
			var attachments *string
			if len(m.Attachments) > 0 {
				data, err := json.Marshal(m.Attachments)
				if err != nil {
					return err
				}
				s := string(data)
				attachments = &s
			}

			createdAt := m.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}

			if _, err := tx.Exec(
				"INSERT OR REPLACE INTO messages (id, conversation_id, role, content, attachments, created_at) VALUES (?, ?, ?, ?, ?, ?)",
				m.ID, conversationID, string(m.Role), m.Content, attachments, createdAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMessages returns the cached transcript for a conversation in
// chronological order.
func (db *DB) ListMessages(conversationID string) ([]chat.Message, error) {
	rows, err := db.Query(
		"SELECT id, role, content, attachments, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC",
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var role string
		var attachments sql.NullString

		if err := rows.Scan(&m.ID, &role, &m.Content, &attachments, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = chat.Role(role)

		if attachments.Valid {
			if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
				return nil, err
			}
		}

		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// DeleteConversation removes a conversation's cached transcript.
func (db *DB) DeleteConversation(conversationID string) error {
	result, err := db.Exec("DELETE FROM messages WHERE conversation_id = ?", conversationID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Conversations lists the cached conversations, most recent first.
func (db *DB) Conversations() ([]ConversationSummary, error) {
	rows, err := db.Query(`
		SELECT conversation_id, COUNT(*), MAX(created_at)
		FROM messages
		GROUP BY conversation_id
		ORDER BY MAX(created_at) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		if err := rows.Scan(&c.ID, &c.MessageCount, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// CountMessages returns the number of cached messages for a conversation.
func (db *DB) CountMessages(conversationID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&count)
	return count, err
}
