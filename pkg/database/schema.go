package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every structural check.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"users":             "User directory",
		"user_blocks":       "Block relationships",
		"messages":          "Message and delivery state storage",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
func (v *SchemaValidator) ValidateTableStructure() error {
	userColumns := map[string]string{
		"id":         "TEXT",
		"full_name":  "TEXT",
		"last_seen":  "DATETIME",
		"created_at": "DATETIME",
	}
	if err := v.validateColumns("users", userColumns); err != nil {
		return fmt.Errorf("users table structure invalid: %w", err)
	}

	blockColumns := map[string]string{
		"blocker_id": "TEXT",
		"blocked_id": "TEXT",
		"created_at": "DATETIME",
	}
	if err := v.validateColumns("user_blocks", blockColumns); err != nil {
		return fmt.Errorf("user_blocks table structure invalid: %w", err)
	}

	messageColumns := map[string]string{
		"id":             "TEXT",
		"sender_id":      "TEXT",
		"receiver_id":    "TEXT",
		"group_id":       "TEXT",
		"text":           "TEXT",
		"image":          "TEXT",
		"voice_message":  "TEXT",
		"voice_duration": "REAL",
		"voice_waveform": "TEXT",
		"file_url":       "TEXT",
		"file_name":      "TEXT",
		"file_type":      "TEXT",
		"file_size":      "INTEGER",
		"delivered":      "INTEGER",
		"delivered_at":   "DATETIME",
		"read":           "INTEGER",
		"read_at":        "DATETIME",
		"created_at":     "DATETIME",
	}
	if err := v.validateColumns("messages", messageColumns); err != nil {
		return fmt.Errorf("messages table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_user_blocks_blocked":    "Reverse block lookups",
		"idx_messages_sender":        "Receipt fan-out to senders",
		"idx_messages_receiver_time": "Direct conversation history",
		"idx_messages_group_time":    "Group conversation history",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
