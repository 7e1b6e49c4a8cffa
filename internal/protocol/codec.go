package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Command identifies the kind of a decoded frame. The kind is taken from the
// first key of the JSON object.
type Command int

// The closed set of commands understood by the codec.
const (
	CommandUnknown Command = iota
	CommandEcho
	CommandName
	CommandJoin
	CommandLeave
	CommandCount
	CommandMsg
	CommandMsgPut
	CommandMsgCut
	CommandMsgRmv
	CommandBlock
	CommandUnblock
	CommandPrmBool
	CommandPrmInt
	CommandPrmStr
	CommandClose
	CommandErr
)

var commandNames = map[Command]string{
	CommandEcho:    "echo",
	CommandName:    "name",
	CommandJoin:    "join",
	CommandLeave:   "leave",
	CommandCount:   "count",
	CommandMsg:     "msg",
	CommandMsgPut:  "msgPut",
	CommandMsgCut:  "msgCut",
	CommandMsgRmv:  "msgRmv",
	CommandBlock:   "block",
	CommandUnblock: "unblock",
	CommandPrmBool: "prmBool",
	CommandPrmInt:  "prmInt",
	CommandPrmStr:  "prmStr",
	CommandClose:   "close",
	CommandErr:     "err",
}

// commandsByKey maps the lower-cased key to its command.
var commandsByKey = func() map[string]Command {
	m := make(map[string]Command, len(commandNames))
	for cmd, name := range commandNames {
		m[strings.ToLower(name)] = cmd
	}
	return m
}()

// String returns the canonical key of the command.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// ErrMalformedFrame is returned when a frame is not a JSON object.
var ErrMalformedFrame = errors.New("frame is not a JSON object")

// UnknownCommandError is returned when the first key of a frame does not name
// a known command.
type UnknownCommandError struct {
	Raw string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %s", e.Raw)
}

// Event is a decoded command frame. Accessors report absence with a false
// second return value, which is distinct from a present zero value.
type Event struct {
	Command Command
	key     string
	root    gjson.Result
}

// Parse decodes a single text frame.
func Parse(frame []byte) (*Event, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return nil, ErrMalformedFrame
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, ErrMalformedFrame
	}

	root := gjson.ParseBytes(trimmed)
	var firstKey string
	found := false
	root.ForEach(func(key, _ gjson.Result) bool {
		firstKey = key.Str
		found = true
		return false
	})
	if !found {
		return nil, &UnknownCommandError{Raw: string(trimmed)}
	}

	cmd, ok := commandsByKey[strings.ToLower(firstKey)]
	if !ok {
		return nil, &UnknownCommandError{Raw: string(trimmed)}
	}

	return &Event{Command: cmd, key: firstKey, root: root}, nil
}

// Raw returns the frame text the event was decoded from.
func (e *Event) Raw() string {
	return e.root.Raw
}

// Value returns the string value of the command key.
func (e *Event) Value() (string, bool) {
	return asString(e.field(e.key))
}

// IntValue returns the integer value of the command key.
func (e *Event) IntValue() (int32, bool) {
	return asInt(e.field(e.key))
}

// Has reports whether key is present, whatever its type.
func (e *Event) Has(key string) bool {
	return e.field(key).Exists()
}

// GetString returns the string stored under key.
func (e *Event) GetString(key string) (string, bool) {
	return asString(e.field(key))
}

// GetInt returns the integer stored under key. Fractional numbers and values
// outside the int32 range are reported as absent.
func (e *Event) GetInt(key string) (int32, bool) {
	return asInt(e.field(key))
}

// GetBool returns the boolean stored under key.
func (e *Event) GetBool(key string) (bool, bool) {
	r := e.field(key)
	switch r.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	default:
		return false, false
	}
}

func (e *Event) field(key string) gjson.Result {
	return e.root.Get(key)
}

func asString(r gjson.Result) (string, bool) {
	if r.Type != gjson.String {
		return "", false
	}
	return r.Str, true
}

func asInt(r gjson.Result) (int32, bool) {
	if r.Type != gjson.Number {
		return 0, false
	}
	if r.Num != math.Trunc(r.Num) || r.Num < math.MinInt32 || r.Num > math.MaxInt32 {
		return 0, false
	}
	return int32(r.Num), true
}
