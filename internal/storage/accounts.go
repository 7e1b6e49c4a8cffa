package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// The helpers below provision users, streams and sessions. Account and
// stream management live outside the chat server; these exist so a fresh
// database can be populated by tools and tests.

// CreateUser inserts a user and returns its id.
func (s *Store) CreateUser(ctx context.Context, nickname string) (int32, error) {
	user := User{Nickname: nickname}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return 0, fmt.Errorf("create user %q: %w", nickname, err)
	}
	return user.ID, nil
}

// CreateStream inserts a stream owned by ownerID and returns its id.
func (s *Store) CreateStream(ctx context.Context, ownerID int32, title string, live bool) (int32, error) {
	stream := Stream{UserID: ownerID, Title: title, Live: live}
	if err := s.db.WithContext(ctx).Create(&stream).Error; err != nil {
		return 0, fmt.Errorf("create stream %q: %w", title, err)
	}
	return stream.ID, nil
}

// SetStreamLive toggles whether the stream accepts chat members.
func (s *Store) SetStreamLive(ctx context.Context, streamID int32, live bool) error {
	result := s.db.WithContext(ctx).Model(&Stream{}).Where("id = ?", streamID).Update("live", live)
	if err := result.Error; err != nil {
		return fmt.Errorf("update stream %d: %w", streamID, err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update stream %d: %w", streamID, ErrNotFound)
	}
	return nil
}

// OpenSession starts a new login for the user and returns its number.
// Tokens issued for earlier numbers stop being accepted.
func (s *Store) OpenSession(ctx context.Context, userID int32) (int32, error) {
	var session Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&session, "user_id = ?", userID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			session = Session{UserID: userID, Num: 1}
			return tx.Create(&session).Error
		case err != nil:
			return err
		}
		session.Num++
		return tx.Model(&session).Update("num", session.Num).Error
	})
	if err != nil {
		return 0, fmt.Errorf("open session of user %d: %w", userID, err)
	}
	return session.Num, nil
}

// CloseSession ends the user's login. It is not an error if none exists.
func (s *Store) CloseSession(ctx context.Context, userID int32) error {
	if err := s.db.WithContext(ctx).Delete(&Session{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("close session of user %d: %w", userID, err)
	}
	return nil
}
