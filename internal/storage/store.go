// Package storage implements the chat collaborators over GORM and SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/streamchat/internal/chat"
)

// ErrNotFound is returned when a row does not exist. It is the same value
// the chat core matches on.
var ErrNotFound = chat.ErrNotFound

// Open connects to the SQLite database at path and migrates the schema.
// Pass ":memory:" for a throwaway database.
func Open(path string, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.New(log.Default(), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database handle: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across goroutines.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// Store provides the chat core's storage collaborators.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetStream implements chat.StreamLookup.
func (s *Store) GetStream(ctx context.Context, streamID int32) (chat.StreamInfo, error) {
	var stream Stream
	if err := s.db.WithContext(ctx).First(&stream, "id = ?", streamID).Error; err != nil {
		return chat.StreamInfo{}, fmt.Errorf("find stream %d: %w", streamID, notFound(err))
	}
	return chat.StreamInfo{ID: stream.ID, OwnerID: stream.UserID, IsLive: stream.Live}, nil
}

// CreateMessage implements chat.ChatMessageStore.
func (s *Store) CreateMessage(ctx context.Context, draft chat.NewChatMessage) (chat.ChatMessage, error) {
	row := Message{
		StreamID:    draft.StreamID,
		UserID:      draft.UserID,
		UserName:    draft.UserName,
		Msg:         draft.Msg,
		DateCreated: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stream Stream
		if err := tx.Select("id").First(&stream, "id = ?", draft.StreamID).Error; err != nil {
			return notFound(err)
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return chat.ChatMessage{}, fmt.Errorf("create message in stream %d: %w", draft.StreamID, err)
	}
	return row.toChat(), nil
}

// ModifyMessage implements chat.ChatMessageStore. Only the author may edit,
// and removed messages stay removed.
func (s *Store) ModifyMessage(ctx context.Context, change chat.ModifyChatMessage) (chat.ChatMessage, error) {
	var row Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&row, "id = ? AND stream_id = ? AND user_id = ? AND date_removed IS NULL",
			change.ID, change.StreamID, change.UserID).Error
		if err != nil {
			return notFound(err)
		}
		now := time.Now().UTC()
		row.Msg = change.Msg
		row.DateChanged = &now
		return tx.Model(&row).Updates(map[string]any{"msg": row.Msg, "date_changed": now}).Error
	})
	if err != nil {
		return chat.ChatMessage{}, fmt.Errorf("modify message %d: %w", change.ID, err)
	}
	return row.toChat(), nil
}

// CutMessage implements chat.ChatMessageStore. The text is cleared and the
// row kept.
func (s *Store) CutMessage(ctx context.Context, ref chat.MessageRef) (chat.ChatMessage, error) {
	var row Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findRef(tx, ref, &row); err != nil {
			return err
		}
		now := time.Now().UTC()
		row.Msg = ""
		row.DateChanged = &now
		row.DateRemoved = &now
		return tx.Model(&row).Updates(map[string]any{"msg": "", "date_changed": now, "date_removed": now}).Error
	})
	if err != nil {
		return chat.ChatMessage{}, fmt.Errorf("cut message %d: %w", ref.ID, err)
	}
	return row.toChat(), nil
}

// DeleteMessage implements chat.ChatMessageStore.
func (s *Store) DeleteMessage(ctx context.Context, ref chat.MessageRef) (chat.ChatMessage, error) {
	var row Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findRef(tx, ref, &row); err != nil {
			return err
		}
		return tx.Delete(&Message{}, "id = ?", row.ID).Error
	})
	if err != nil {
		return chat.ChatMessage{}, fmt.Errorf("delete message %d: %w", ref.ID, err)
	}
	return row.toChat(), nil
}

// findRef loads the message ref points at. Owners may address any message
// in their stream, everyone else only their own.
func findRef(tx *gorm.DB, ref chat.MessageRef, row *Message) error {
	query := tx.Where("id = ? AND stream_id = ?", ref.ID, ref.StreamID)
	if !ref.AsOwner {
		query = query.Where("user_id = ?", ref.UserID)
	}
	return notFound(query.First(row).Error)
}

// FindByNickname implements chat.UserLookup.
func (s *Store) FindByNickname(ctx context.Context, nickname string) (int32, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "nickname = ?", nickname).Error; err != nil {
		return 0, fmt.Errorf("find user %q: %w", nickname, notFound(err))
	}
	return user.ID, nil
}

// FindByID implements chat.UserLookup.
func (s *Store) FindByID(ctx context.Context, userID int32) (chat.UserProfile, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return chat.UserProfile{}, fmt.Errorf("find user %d: %w", userID, notFound(err))
	}
	return chat.UserProfile{ID: user.ID, Nickname: user.Nickname}, nil
}

// IsBlocked implements chat.BlockStore.
func (s *Store) IsBlocked(ctx context.Context, ownerID, userID int32) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&BlockedUser{}).
		Where("owner_id = ? AND user_id = ?", ownerID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check block of user %d by %d: %w", userID, ownerID, err)
	}
	return n > 0, nil
}

// SetBlocked implements chat.BlockStore. Both directions are idempotent.
func (s *Store) SetBlocked(ctx context.Context, ownerID, userID int32, blocked bool) error {
	db := s.db.WithContext(ctx)
	var err error
	if blocked {
		err = db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&BlockedUser{OwnerID: ownerID, UserID: userID}).Error
	} else {
		err = db.Where("owner_id = ? AND user_id = ?", ownerID, userID).Delete(&BlockedUser{}).Error
	}
	if err != nil {
		return fmt.Errorf("set block of user %d by %d to %t: %w", userID, ownerID, blocked, err)
	}
	return nil
}

// FindSessionNum implements auth.SessionStore.
func (s *Store) FindSessionNum(ctx context.Context, userID int32) (int32, bool, error) {
	var session Session
	err := s.db.WithContext(ctx).First(&session, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find session of user %d: %w", userID, err)
	}
	return session.Num, true, nil
}
