package protocol

import (
	"encoding/json"
	"log"
	"time"

	"github.com/tidwall/sjson"
)

// ErrEvent is the outbound failure frame.
type ErrEvent struct {
	Err     int    `json:"err"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EchoEvent answers an echo command.
type EchoEvent struct {
	Echo string `json:"echo"`
}

// NameEvent confirms the display name of the connection.
type NameEvent struct {
	Name string `json:"name"`
}

// JoinEvent announces a new room member. IsOwner and IsBlocked are only set
// on the copy delivered to the joining connection.
type JoinEvent struct {
	Join      int32  `json:"join"`
	Member    string `json:"member"`
	Count     int    `json:"count"`
	IsOwner   *bool  `json:"isOwner,omitempty"`
	IsBlocked *bool  `json:"isBlocked,omitempty"`
}

// LeaveEvent announces a departed room member.
type LeaveEvent struct {
	Leave  int32  `json:"leave"`
	Member string `json:"member"`
	Count  int    `json:"count"`
}

// CountEvent reports the member count of the caller's room.
type CountEvent struct {
	Count int `json:"count"`
}

// MsgEvent renders a chat message.
type MsgEvent struct {
	Msg     string  `json:"msg"`
	ID      int32   `json:"id"`
	Member  string  `json:"member"`
	Date    string  `json:"date"`
	DateEdt *string `json:"dateEdt,omitempty"`
	DateRmv *string `json:"dateRmv,omitempty"`
}

// MsgRmvEvent announces a deleted chat message.
type MsgRmvEvent struct {
	MsgRmv int32 `json:"msgRmv"`
}

// BlockEvent reports a block decision.
type BlockEvent struct {
	Block    string `json:"block"`
	IsInChat bool   `json:"isInChat"`
}

// UnblockEvent reports an unblock decision.
type UnblockEvent struct {
	Unblock  string `json:"unblock"`
	IsInChat bool   `json:"isInChat"`
}

// PrmBoolEvent carries a named boolean parameter.
type PrmBoolEvent struct {
	PrmBool string `json:"prmBool"`
	ValBool bool   `json:"valBool"`
}

// PrmIntEvent carries a named integer parameter.
type PrmIntEvent struct {
	PrmInt string `json:"prmInt"`
	ValInt int32  `json:"valInt"`
}

// PrmStrEvent carries a named string parameter.
type PrmStrEvent struct {
	PrmStr string `json:"prmStr"`
	ValStr string `json:"valStr"`
}

// NewMsgEvent builds the rendering of a stored chat message.
func NewMsgEvent(id int32, member, text string, created time.Time, changed, removed *time.Time) MsgEvent {
	return MsgEvent{
		Msg:     text,
		ID:      id,
		Member:  member,
		Date:    FormatDate(created),
		DateEdt: formatOptionalDate(changed),
		DateRmv: formatOptionalDate(removed),
	}
}

// FormatDate renders a timestamp the way every event carries it.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatDate(*t)
	return &s
}

// Bool returns a pointer to v, for the optional fields of JoinEvent.
func Bool(v bool) *bool {
	return &v
}

// Encode marshals an outbound event. A failure is logged and replaced by an
// internal error frame so the caller always has something to deliver.
func Encode(event any) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding %T event: %v", event, err)
		return []byte(`{"err":500,"code":"InternalError","message":"internal error"}`)
	}
	return payload
}

// WithOwner annotates an encoded event with "isOwner":true.
func WithOwner(payload []byte) []byte {
	annotated, err := sjson.SetBytes(payload, "isOwner", true)
	if err != nil {
		log.Printf("Error annotating event with owner flag: %v", err)
		return payload
	}
	return annotated
}
