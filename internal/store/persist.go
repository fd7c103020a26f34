package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"frontdesk/internal/domain"
)

// Persist stores msg for the customer identified by key, creating the customer
// on first contact. A message whose external id is already stored yields
// domain.ErrDuplicate.
func (s *Store) Persist(ctx context.Context, msg domain.RoutedMessage, key domain.CustomerKey) (domain.Receipt, error) {
	col, err := handleColumn(key.Channel)
	if err != nil {
		return domain.Receipt{}, err
	}
	if key.Sender == "" {
		return domain.Receipt{}, errors.New("persist: empty sender")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ext := msg.Message.ExternalID
	if ext != "" {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE channel = ? AND external_id = ?`, string(key.Channel), ext).Scan(&one)
		if err == nil {
			return domain.Receipt{}, domain.ErrDuplicate
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Receipt{}, fmt.Errorf("check external id: %w", err)
		}
	}

	now := s.now().UTC()
	receipt := domain.Receipt{}

	err = tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE `+col+` = ?`, key.Sender).Scan(&receipt.CustomerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if receipt.CustomerID, err = s.nextID(); err != nil {
			return domain.Receipt{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO customers (id, name, `+col+`, message_count, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
			receipt.CustomerID, msg.Message.SenderName, key.Sender, now, now,
		); err != nil {
			return domain.Receipt{}, fmt.Errorf("insert customer: %w", err)
		}
		receipt.NewCustomer = true
	case err != nil:
		return domain.Receipt{}, fmt.Errorf("find customer: %w", err)
	}

	if receipt.MessageID, err = s.nextID(); err != nil {
		return domain.Receipt{}, err
	}
	row, err := messageRow(msg)
	if err != nil {
		return domain.Receipt{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, customer_id, channel, sender, external_id, kind, content, attachment, metadata,
			intent, confidence, language, matched_intents, priority, status, batch_id, raw_timestamp,
			received_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.MessageID, receipt.CustomerID, string(key.Channel), key.Sender, nullString(ext),
		msg.Message.Kind, row.content, row.attachment, row.metadata,
		string(msg.Classification.Intent), msg.Classification.Confidence, string(msg.Classification.Language),
		row.matched, string(msg.Priority), string(domain.StatusUnread), msg.BatchID, msg.Message.RawTimestamp,
		msg.Message.ReceivedAt.UTC(), now, now,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.Receipt{}, domain.ErrDuplicate
		}
		return domain.Receipt{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE customers SET message_count = message_count + 1, last_message_at = ?, updated_at = ?,
			name = CASE WHEN name = '' THEN ? ELSE name END
		 WHERE id = ?`,
		now, now, msg.Message.SenderName, receipt.CustomerID,
	); err != nil {
		return domain.Receipt{}, fmt.Errorf("update customer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Receipt{}, fmt.Errorf("commit: %w", err)
	}
	if receipt.NewCustomer {
		s.logger.Info("customer created", "channel", key.Channel, "customer_id", receipt.CustomerID)
	}
	return receipt, nil
}

type encodedMessage struct {
	content    sql.NullString
	attachment sql.NullString
	metadata   sql.NullString
	matched    string
}

func messageRow(msg domain.RoutedMessage) (encodedMessage, error) {
	var row encodedMessage
	if c := msg.Message.Content; c != nil {
		row.content = sql.NullString{String: c.Text, Valid: c.Attachment == nil}
		if c.Attachment != nil {
			b, err := json.Marshal(c.Attachment)
			if err != nil {
				return row, fmt.Errorf("encode attachment: %w", err)
			}
			row.attachment = sql.NullString{String: string(b), Valid: true}
		}
	}
	if len(msg.Message.Metadata) > 0 {
		b, err := json.Marshal(msg.Message.Metadata)
		if err != nil {
			return row, fmt.Errorf("encode metadata: %w", err)
		}
		row.metadata = sql.NullString{String: string(b), Valid: true}
	}
	matched := msg.Classification.MatchedIntents
	if matched == nil {
		matched = []domain.Intent{}
	}
	b, err := json.Marshal(matched)
	if err != nil {
		return row, fmt.Errorf("encode matched intents: %w", err)
	}
	row.matched = string(b)
	return row, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
