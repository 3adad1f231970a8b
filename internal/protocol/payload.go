package protocol

type Event string

const (
	EventInit        Event = "init"
	EventUserJoined  Event = "userJoined"
	EventChatMessage Event = "chatMessage"
)

// Payload is the typed form of an envelope's data object.
type Payload interface {
	Event() Event
}

type InitData struct {
	UUID string `json:"uuid"`
}

func (InitData) Event() Event { return EventInit }

type UserJoinedData struct {
	UUID string `json:"uuid"`
}

func (UserJoinedData) Event() Event { return EventUserJoined }

// ChatMessageData travels in both directions. Clients send only Content;
// the server fills in UUID with the sender's identity before relaying.
type ChatMessageData struct {
	UUID    string `json:"uuid,omitempty"`
	Content string `json:"content"`
}

func (ChatMessageData) Event() Event { return EventChatMessage }

// UnknownData carries the data object of any event this package has no
// type for.
type UnknownData struct {
	Tag    Event
	Fields map[string]any
}

func (u UnknownData) Event() Event { return u.Tag }
