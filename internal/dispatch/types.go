package dispatch

import (
	"context"
	"time"
)

const (
	ContactSuffix = "@c.us"
	GroupSuffix   = "@g.us"
)

type RecipientType string

const (
	RecipientContact RecipientType = "contact"
	RecipientGroup   RecipientType = "group"
)

type Recipient struct {
	ID   string        `json:"id"`
	Name string        `json:"name,omitempty"`
	Type RecipientType `json:"type,omitempty"`
}

func (r Recipient) IsGroup() bool {
	return r.Type == RecipientGroup
}

// DisplayName falls back to the id when no name was supplied.
func (r Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

type ResolutionMethod string

const (
	MethodDirect       ResolutionMethod = "direct"
	MethodNumberLookup ResolutionMethod = "number-lookup"
	MethodChatListScan ResolutionMethod = "chat-list-scan"
)

// Attempt is one step of the resolution chain, kept for diagnostics.
type Attempt struct {
	Method  ResolutionMethod `json:"method"`
	Target  string           `json:"target,omitempty"`
	Success bool             `json:"success"`
	Reason  string           `json:"reason,omitempty"`
}

type ChatHandle struct {
	CanonicalID string           `json:"canonicalId"`
	Method      ResolutionMethod `json:"resolutionMethod"`
	Name        string           `json:"name,omitempty"`
	Attempts    []Attempt        `json:"attempts,omitempty"`
}

// Chat is a conversation known to the transport.
type Chat struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsGroup      bool   `json:"isGroup"`
	Participants int    `json:"participants,omitempty"`
}

// Ack levels reported by the transport.
const (
	AckError   = -1
	AckPending = 0
	AckServer  = 1
	AckDevice  = 2
	AckRead    = 3
	AckPlayed  = 4
)

type Media struct {
	Data     []byte
	MimeType string
	FileName string
}

type Payload struct {
	Text  string
	Image *Media
}

func (p Payload) Empty() bool {
	return p.Text == "" && (p.Image == nil || len(p.Image.Data) == 0)
}

func (p Payload) Kind() string {
	switch {
	case p.Image != nil && p.Text != "":
		return "image_caption"
	case p.Image != nil:
		return "image"
	default:
		return "text"
	}
}

type SentMessage struct {
	ID        string
	Ack       int
	Timestamp time.Time
}

// SendOutcome is the immutable record of one recipient's send.
// Delivered is nil when delivery was not tracked.
type SendOutcome struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        RecipientType    `json:"type"`
	CanonicalID string           `json:"canonicalId,omitempty"`
	Method      ResolutionMethod `json:"resolutionMethod,omitempty"`
	MessageID   string           `json:"messageId,omitempty"`
	Delivered   *bool            `json:"delivered"`
	Ack         *int             `json:"ack"`
	Error       string           `json:"error,omitempty"`
	Attempts    []Attempt        `json:"attempts,omitempty"`
}

func (o SendOutcome) Failed() bool {
	return o.Error != ""
}

// Transport is what the dispatch subsystem needs from the WhatsApp client.
type Transport interface {
	IsReady() bool
	ResolveChatDirect(ctx context.Context, canonicalID string) (Chat, error)
	LookupNumberIdentity(ctx context.Context, number string) (any, error)
	ListAllChats(ctx context.Context) ([]Chat, error)
	NewMessageID() string
	SendText(ctx context.Context, canonicalID string, messageID string, text string) (SentMessage, error)
	SendImage(ctx context.Context, canonicalID string, messageID string, media Media, caption string) (SentMessage, error)
}

// AckSource delivers acknowledgment events to a single callback until unsubscribed.
type AckSource interface {
	SubscribeAcks(fn func(messageID string, ack int)) (unsubscribe func())
}
