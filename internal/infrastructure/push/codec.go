package push

import "encoding/json"

type MessageType string

const (
	TypeJoined MessageType = "joined"
	TypeLeft   MessageType = "left"
	TypeStart  MessageType = "start"
	TypeEnd    MessageType = "end"
	TypeStop   MessageType = "stop"
	TypeClose  MessageType = "close"
)

// Message is one event delivered to a participant. Only the fields belonging to Type are set.
type Message struct {
	Type      MessageType `json:"type"`
	UserName  string      `json:"user_name,omitempty"`
	Word      string      `json:"word,omitempty"`
	OwnerName string      `json:"owner_name,omitempty"`
}

func Joined(userName string) Message {
	return Message{Type: TypeJoined, UserName: userName}
}

func Left(userName string) Message {
	return Message{Type: TypeLeft, UserName: userName}
}

func Start(word string) Message {
	return Message{Type: TypeStart, Word: word}
}

func End() Message {
	return Message{Type: TypeEnd}
}

func Stop(userName string) Message {
	return Message{Type: TypeStop, UserName: userName}
}

func Close(ownerName string) Message {
	return Message{Type: TypeClose, OwnerName: ownerName}
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}
