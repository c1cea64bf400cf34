package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const MaxRoomIDLen = 64

// RoomID is caller supplied. On the wire it may be a JSON number or a string;
// 7 and "7" name the same room.
type RoomID string

func ParseRoomID(s string) (RoomID, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return "", ErrRoomIDEmpty
	}
	if len(s) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(s), nil
}

func (r *RoomID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*r = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		v, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("room id: %w", err)
		}
		*r = RoomID(v)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("room id: %s is neither a string nor a number", s)
	}
	*r = RoomID(s)
	return nil
}

func (r RoomID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(r))), nil
}
