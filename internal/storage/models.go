package storage

import (
	"time"

	"github.com/Tyrowin/streamchat/internal/chat"
)

// User is a registered account. Only the nickname matters to chat.
type User struct {
	ID        int32     `gorm:"primarykey"`
	Nickname  string    `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt time.Time
}

// TableName returns the table name for User model.
func (User) TableName() string {
	return "users"
}

// Stream is a broadcast owned by a user. Its id is also the chat room id.
type Stream struct {
	ID        int32  `gorm:"primarykey"`
	UserID    int32  `gorm:"index;not null"`
	Title     string `gorm:"size:255"`
	Live      bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for Stream model.
func (Stream) TableName() string {
	return "streams"
}

// Session holds the number of the user's current login. Tokens carrying an
// older number are rejected.
type Session struct {
	UserID    int32 `gorm:"primarykey;autoIncrement:false"`
	Num       int32 `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName returns the table name for Session model.
func (Session) TableName() string {
	return "sessions"
}

// Message is a persisted chat message.
type Message struct {
	ID          int32  `gorm:"primarykey"`
	StreamID    int32  `gorm:"index;not null"`
	UserID      int32  `gorm:"index;not null"`
	UserName    string `gorm:"size:64;not null"`
	Msg         string `gorm:"size:4096"`
	DateCreated time.Time
	DateChanged *time.Time
	DateRemoved *time.Time
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "chat_messages"
}

func (m Message) toChat() chat.ChatMessage {
	return chat.ChatMessage{
		ID:          m.ID,
		StreamID:    m.StreamID,
		UserID:      m.UserID,
		UserName:    m.UserName,
		Msg:         m.Msg,
		DateCreated: m.DateCreated,
		DateChanged: m.DateChanged,
		DateRemoved: m.DateRemoved,
	}
}

// BlockedUser records that the owner has blocked the user from posting in
// the owner's streams.
type BlockedUser struct {
	OwnerID   int32 `gorm:"primarykey;autoIncrement:false"`
	UserID    int32 `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
}

// TableName returns the table name for BlockedUser model.
func (BlockedUser) TableName() string {
	return "blocked_users"
}

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{&User{}, &Stream{}, &Session{}, &Message{}, &BlockedUser{}}
}
