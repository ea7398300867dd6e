package domain

import "fmt"

type DestinationKind int

const (
	DestinationAll DestinationKind = iota
	DestinationGroup
	DestinationUser
)

func (k DestinationKind) String() string {
	switch k {
	case DestinationAll:
		return "all"
	case DestinationGroup:
		return "group"
	case DestinationUser:
		return "user"
	default:
		return fmt.Sprintf("destination(%d)", int(k))
	}
}

// Destination is a logical target; Target holds the group or user name.
type Destination struct {
	Kind   DestinationKind
	Target string
}

func ToAll() Destination { return Destination{Kind: DestinationAll} }
func ToGroup(name GroupName) Destination { return Destination{Kind: DestinationGroup, Target: string(name)} }
func ToUser(username string) Destination { return Destination{Kind: DestinationUser, Target: username} }

// ChatMessage is an inbound message before resolution and enrichment.
type ChatMessage struct {
	Sender      ConnectionID
	Author      string
	Destination Destination
	Text        string
}

// SentimentUnknown labels messages whose sentiment could not be evaluated.
const SentimentUnknown = "unknown"

// Sentiment is the result of a single sentiment evaluation.
type Sentiment struct {
	Label    string  `json:"sentiment"`
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

func UnknownSentiment() Sentiment {
	return Sentiment{Label: SentimentUnknown}
}

// EnrichedMessage is what a single recipient receives.
type EnrichedMessage struct {
	User    string  `json:"user"`
	Group   *string `json:"group"`
	Message string  `json:"message"`
	Sentiment
}

// NotOnlineText is the system reply for a private message to an unknown user.
func NotOnlineText(username string) string {
	return fmt.Sprintf("%s is not online.", username)
}
