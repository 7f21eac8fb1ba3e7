package types

import (
	"fmt"
	"strconv"
	"strings"
)

type TopicKind uint8

const (
	TopicRoom TopicKind = iota + 1
	TopicUser
)

// Topic addresses a broadcast channel: every connection joined to a room, or
// every connection of a single user.
type Topic struct {
	Kind TopicKind
	Id   int
}

func RoomTopic(roomId int) Topic {
	return Topic{Kind: TopicRoom, Id: roomId}
}

func UserTopic(userId int) Topic {
	return Topic{Kind: TopicUser, Id: userId}
}

func (t Topic) String() string {
	switch t.Kind {
	case TopicRoom:
		return "room:" + strconv.Itoa(t.Id)
	case TopicUser:
		return "user:" + strconv.Itoa(t.Id)
	default:
		return "unknown:" + strconv.Itoa(t.Id)
	}
}

func (t Topic) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Topic) UnmarshalText(text []byte) error {
	parsed, err := ParseTopic(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTopic reads the "room:<id>" and "user:<id>" forms produced by String.
func ParseTopic(s string) (Topic, error) {
	kind, rawId, ok := strings.Cut(s, ":")
	if !ok {
		return Topic{}, fmt.Errorf("malformed topic %q", s)
	}
	id, err := strconv.Atoi(rawId)
	if err != nil {
		return Topic{}, fmt.Errorf("malformed topic id %q: %w", s, err)
	}

	switch kind {
	case "room":
		return RoomTopic(id), nil
	case "user":
		return UserTopic(id), nil
	}
	return Topic{}, fmt.Errorf("unknown topic kind %q", kind)
}
