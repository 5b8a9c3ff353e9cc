package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errUnknownChat = errors.New("chat not found")

// fakeTransport records every call and answers from static tables.
type fakeTransport struct {
	mu sync.Mutex

	ready    bool
	chats    map[string]Chat
	lookups  map[string]any
	lookErr  error
	listErr  error
	list     []Chat
	sendErr  map[string]error
	nextID   int
	onSend   func(canonicalID string, messageID string)

	directCalls []string
	lookupCalls []string
	listCalls   int
	sent        []sentRecord
}

type sentRecord struct {
	CanonicalID string
	MessageID   string
	Text        string
	Caption     string
	Image       bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		ready:   true,
		chats:   map[string]Chat{},
		lookups: map[string]any{},
		sendErr: map[string]error{},
	}
}

func (f *fakeTransport) addChat(id string) {
	f.chats[id] = Chat{ID: id, Name: "chat " + id}
}

func (f *fakeTransport) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTransport) ResolveChatDirect(_ context.Context, canonicalID string) (Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directCalls = append(f.directCalls, canonicalID)
	chat, ok := f.chats[canonicalID]
	if !ok {
		return Chat{}, errUnknownChat
	}
	return chat, nil
}

func (f *fakeTransport) LookupNumberIdentity(_ context.Context, number string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls = append(f.lookupCalls, number)
	if f.lookErr != nil {
		return nil, f.lookErr
	}
	return f.lookups[number], nil
}

func (f *fakeTransport) ListAllChats(context.Context) ([]Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

func (f *fakeTransport) NewMessageID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("3EB0%04d", f.nextID)
}

func (f *fakeTransport) SendText(_ context.Context, canonicalID string, messageID string, text string) (SentMessage, error) {
	return f.record(sentRecord{CanonicalID: canonicalID, MessageID: messageID, Text: text})
}

func (f *fakeTransport) SendImage(_ context.Context, canonicalID string, messageID string, media Media, caption string) (SentMessage, error) {
	return f.record(sentRecord{CanonicalID: canonicalID, MessageID: messageID, Caption: caption, Image: len(media.Data) > 0})
}

func (f *fakeTransport) record(r sentRecord) (SentMessage, error) {
	f.mu.Lock()
	err := f.sendErr[r.CanonicalID]
	if err == nil {
		f.sent = append(f.sent, r)
	}
	hook := f.onSend
	f.mu.Unlock()

	if err != nil {
		return SentMessage{}, err
	}
	if hook != nil {
		hook(r.CanonicalID, r.MessageID)
	}
	return SentMessage{ID: r.MessageID, Ack: AckServer, Timestamp: time.Now()}, nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
