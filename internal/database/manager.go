package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	dbconfig "chathub/pkg/database"
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

var (
	_ interfaces.MessageRepository = (*Manager)(nil)
	_ interfaces.UserDirectory     = (*Manager)(nil)
)

// ErrManagerClosed is returned for writes issued after Close.
var ErrManagerClosed = errors.New("database manager is closed")

// Manager is the SQLite-backed message repository and user directory.
// Reads run concurrently on the pool; writes are funnelled through a single
// writer goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine. Schema
// migrations are applied separately via GetDB.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed: %v", err)
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StoreMessage stores a message in the database
func (m *Manager) StoreMessage(ctx context.Context, message *types.Message) error {
	waveform, err := encodeWaveform(message.VoiceWaveform)
	if err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO messages (id, sender_id, receiver_id, group_id, text, image,
				voice_message, voice_duration, voice_waveform, file_url, file_name, file_type, file_size,
				delivered, delivered_at, read, read_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		var file types.File
		if message.File != nil {
			file = *message.File
		}

		_, err := db.ExecContext(ctx, query,
			message.ID,
			message.SenderID,
			nullString(message.ReceiverID),
			nullString(message.GroupID),
			message.Text,
			message.Image,
			message.VoiceMessage,
			message.VoiceDuration,
			waveform,
			file.URL,
			file.Name,
			file.Type,
			file.Size,
			message.Delivered,
			nullTime(message.DeliveredAt),
			message.Read,
			nullTime(message.ReadAt),
			message.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		return nil
	})
}

// GetMessage retrieves a message with its delivery state
func (m *Manager) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, group_id, text, image, voice_message, voice_duration,
			voice_waveform, file_url, file_name, file_type, file_size,
			delivered, delivered_at, read, read_at, created_at
		FROM messages
		WHERE id = ?
	`

	var message types.Message
	var receiverID, groupID sql.NullString
	var deliveredAt, readAt sql.NullTime
	var waveform string
	var file types.File

	err := m.db.QueryRowContext(ctx, query, messageID).Scan(
		&message.ID,
		&message.SenderID,
		&receiverID,
		&groupID,
		&message.Text,
		&message.Image,
		&message.VoiceMessage,
		&message.VoiceDuration,
		&waveform,
		&file.URL,
		&file.Name,
		&file.Type,
		&file.Size,
		&message.Delivered,
		&deliveredAt,
		&message.Read,
		&readAt,
		&message.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to query message: %w", err)
	}

	if receiverID.Valid {
		message.ReceiverID = &receiverID.String
	}
	if groupID.Valid {
		message.GroupID = &groupID.String
	}
	if deliveredAt.Valid {
		message.DeliveredAt = &deliveredAt.Time
	}
	if readAt.Valid {
		message.ReadAt = &readAt.Time
	}
	if file.URL != "" {
		message.File = &file
	}
	if message.VoiceWaveform, err = decodeWaveform(waveform); err != nil {
		return nil, err
	}

	return &message, nil
}

// deliveryUpdates holds one conditional statement per field; the WHERE clause
// makes the false -> true transition happen at most once.
var deliveryUpdates = map[types.DeliveryField]string{
	types.FieldDelivered: `UPDATE messages SET delivered = 1, delivered_at = ? WHERE id = ? AND delivered = 0`,
	types.FieldRead:      `UPDATE messages SET read = 1, read_at = ? WHERE id = ? AND read = 0`,
}

// UpdateDeliveryState flips a delivery flag if it is still unset
func (m *Manager) UpdateDeliveryState(ctx context.Context, messageID string, field types.DeliveryField, at time.Time) (bool, error) {
	query, ok := deliveryUpdates[field]
	if !ok {
		return false, fmt.Errorf("unknown delivery field %q", field)
	}

	applied := false
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, query, at.UTC(), messageID)
		if err != nil {
			return fmt.Errorf("failed to update %s state: %w", field, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if rows > 0 {
			applied = true
			return nil
		}

		var exists int
		err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE id = ?", messageID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check message existence: %w", err)
		}
		if exists == 0 {
			return interfaces.ErrMessageNotFound
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

// UpsertUser creates a directory entry or updates its display name
func (m *Manager) UpsertUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO users (id, full_name, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name
		`
		createdAt := user.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := db.ExecContext(ctx, query, user.ID, user.FullName, createdAt.UTC()); err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}
		return nil
	})
}

// GetUser retrieves a directory entry
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var user types.User
	var lastSeen sql.NullTime

	err := m.db.QueryRowContext(ctx,
		"SELECT id, full_name, last_seen, created_at FROM users WHERE id = ?", userID,
	).Scan(&user.ID, &user.FullName, &lastSeen, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}
	return &user, nil
}

// GetBlockList returns the ids blocked by userID
func (m *Manager) GetBlockList(ctx context.Context, userID string) ([]string, error) {
	if _, err := m.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
		"SELECT blocked_id FROM user_blocks WHERE blocker_id = ? ORDER BY blocked_id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query block list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	blocked := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan block row: %w", err)
		}
		blocked = append(blocked, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating block rows: %w", err)
	}

	return blocked, nil
}

// BlockUser records that blockerID blocks blockedID. Repeating it is a no-op.
func (m *Manager) BlockUser(ctx context.Context, blockerID, blockedID string) error {
	if _, err := m.GetUser(ctx, blockerID); err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT OR IGNORE INTO user_blocks (blocker_id, blocked_id, created_at) VALUES (?, ?, ?)",
			blockerID, blockedID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to block user: %w", err)
		}
		return nil
	})
}

// UnblockUser removes a block. Removing a missing block is a no-op.
func (m *Manager) UnblockUser(ctx context.Context, blockerID, blockedID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"DELETE FROM user_blocks WHERE blocker_id = ? AND blocked_id = ?", blockerID, blockedID)
		if err != nil {
			return fmt.Errorf("failed to unblock user: %w", err)
		}
		return nil
	})
}

// UpdateLastSeen stamps the user's last-seen time
func (m *Manager) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, "UPDATE users SET last_seen = ? WHERE id = ?", at.UTC(), userID)
		if err != nil {
			return fmt.Errorf("failed to update last seen: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if rows == 0 {
			return interfaces.ErrUserNotFound
		}
		return nil
	})
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// The waveform is stored as a JSON array; an empty column means no samples.
func encodeWaveform(samples []float64) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return "", fmt.Errorf("failed to encode voice waveform: %w", err)
	}
	return string(data), nil
}

func decodeWaveform(column string) ([]float64, error) {
	if column == "" {
		return nil, nil
	}
	var samples []float64
	if err := json.Unmarshal([]byte(column), &samples); err != nil {
		return nil, fmt.Errorf("failed to decode voice waveform: %w", err)
	}
	return samples, nil
}
