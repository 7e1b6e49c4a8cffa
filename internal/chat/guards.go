package chat

import "github.com/Tyrowin/streamchat/internal/protocol"

func requirePresent(ok bool, field string) *protocol.WSError {
	if !ok {
		return protocol.MissingField(field)
	}
	return nil
}

func requireNonEmpty(value string, ok bool, field string) *protocol.WSError {
	if !ok || value == "" {
		return protocol.MissingField(field)
	}
	return nil
}

func requirePositive(value int32, ok bool, field string) *protocol.WSError {
	if !ok {
		return protocol.MissingField(field)
	}
	if value <= 0 {
		return protocol.InvalidField(field)
	}
	return nil
}

func requireJoined(roomID int32) *protocol.WSError {
	if roomID == 0 {
		return protocol.ErrNotJoined
	}
	return nil
}

func requireNotBlocked(isBlocked bool) *protocol.WSError {
	if isBlocked {
		return protocol.ErrBlocked
	}
	return nil
}

func requireOwner(isOwner bool) *protocol.WSError {
	if !isOwner {
		return protocol.ErrOwnerRightsMissing
	}
	return nil
}

// firstFailure returns the first non-nil guard result. Callers list guards in
// the order field presence, join state, block state, owner state.
func firstFailure(checks ...*protocol.WSError) *protocol.WSError {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
