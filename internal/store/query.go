package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"frontdesk/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

// MessageFilter narrows ListMessages. Zero fields match everything.
type MessageFilter struct {
	Channel    domain.Channel
	Priority   domain.Priority
	Status     domain.MessageStatus
	CustomerID int64
	Limit      int
}

const messageColumns = `id, customer_id, channel, sender, external_id, kind, content, attachment, metadata,
	intent, confidence, language, matched_intents, priority, status, batch_id, raw_timestamp,
	received_at, created_at, updated_at`

// ListMessages returns messages newest first.
func (s *Store) ListMessages(ctx context.Context, f MessageFilter) ([]domain.StoredMessage, error) {
	var where []string
	var args []any
	if f.Channel != "" {
		where, args = append(where, "channel = ?"), append(args, string(f.Channel))
	}
	if f.Priority != "" {
		where, args = append(where, "priority = ?"), append(args, string(f.Priority))
	}
	if f.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(f.Status))
	}
	if f.CustomerID != 0 {
		where, args = append(where, "customer_id = ?"), append(args, f.CustomerID)
	}

	q := `SELECT ` + messageColumns + ` FROM messages`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []domain.StoredMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns one message or domain.ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, id int64) (domain.StoredMessage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredMessage{}, fmt.Errorf("message %d: %w", id, domain.ErrNotFound)
	}
	return m, err
}

// UpdateMessageStatus sets the staff handling status of a message.
func (s *Store) UpdateMessageStatus(ctx context.Context, id int64, status domain.MessageStatus) error {
	if _, ok := domain.ParseMessageStatus(string(status)); !ok {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

const customerColumns = `id, name, phone, email, instagram_handle, review_handle, message_count,
	last_message_at, created_at, updated_at`

// ListCustomers returns customers by most recent contact.
func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY updated_at DESC, id DESC LIMIT ?`, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := []domain.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// GetCustomer returns one customer or domain.ErrNotFound.
func (s *Store) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, fmt.Errorf("customer %d: %w", id, domain.ErrNotFound)
	}
	return c, err
}

// FindCustomer looks a customer up by channel handle.
func (s *Store) FindCustomer(ctx context.Context, key domain.CustomerKey) (domain.Customer, error) {
	col, err := handleColumn(key.Channel)
	if err != nil {
		return domain.Customer{}, err
	}
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+col+` = ?`, key.Sender))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, fmt.Errorf("customer %s/%s: %w", key.Channel, key.Sender, domain.ErrNotFound)
	}
	return c, err
}

// Counts returns message totals keyed by priority.
func (s *Store) Counts(ctx context.Context) (map[domain.Priority]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT priority, COUNT(*) FROM messages GROUP BY priority`)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	defer rows.Close()
	out := map[domain.Priority]int{}
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		out[domain.Priority(p)] = n
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(sc scanner) (domain.StoredMessage, error) {
	var (
		m                              domain.StoredMessage
		ext, content, attach, metadata sql.NullString
		channel, intent, lang, prio    string
		status, matched                string
	)
	err := sc.Scan(&m.ID, &m.CustomerID, &channel, &m.Message.Sender, &ext, &m.Message.Kind,
		&content, &attach, &metadata, &intent, &m.Classification.Confidence, &lang, &matched,
		&prio, &status, &m.BatchID, &m.Message.RawTimestamp,
		&m.Message.ReceivedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	m.Message.Channel = domain.Channel(channel)
	m.Message.ExternalID = ext.String
	m.Classification.Intent = domain.Intent(intent)
	m.Classification.Language = domain.Language(lang)
	m.Priority = domain.Priority(prio)
	m.Status = domain.MessageStatus(status)

	switch {
	case attach.Valid:
		var a domain.Attachment
		if err := json.Unmarshal([]byte(attach.String), &a); err != nil {
			return m, fmt.Errorf("decode attachment of message %d: %w", m.ID, err)
		}
		m.Message.Content = domain.AttachmentContent(a)
	case content.Valid:
		m.Message.Content = domain.TextContent(content.String)
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &m.Message.Metadata); err != nil {
			return m, fmt.Errorf("decode metadata of message %d: %w", m.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(matched), &m.Classification.MatchedIntents); err != nil {
		return m, fmt.Errorf("decode matched intents of message %d: %w", m.ID, err)
	}
	return m, nil
}

func scanCustomer(sc scanner) (domain.Customer, error) {
	var (
		c                          domain.Customer
		phone, email, insta, revue sql.NullString
		last                       sql.NullTime
	)
	if err := sc.Scan(&c.ID, &c.Name, &phone, &email, &insta, &revue, &c.MessageCount,
		&last, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.Phone, c.Email, c.InstagramHandle, c.ReviewHandle = phone.String, email.String, insta.String, revue.String
	if last.Valid {
		t := last.Time
		c.LastMessageAt = &t
	}
	return c, nil
}
