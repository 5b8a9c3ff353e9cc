package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
)

var ErrNotOnWhatsApp = errors.New("WhatsApp Personal ID is Not Registered")

var (
	_ dispatch.Transport = (*Manager)(nil)
	_ dispatch.AckSource = (*Manager)(nil)
)

func (m *Manager) IsReady() bool {
	return m.Status().Ready
}

func (m *Manager) readyClient() (*whatsmeow.Client, error) {
	client, err := m.currentClient()
	if err != nil {
		return nil, dispatch.ErrNotReady
	}
	if !m.IsReady() {
		return nil, dispatch.ErrNotReady
	}
	return client, nil
}

// ResolveChatDirect confirms that a canonical id addresses a chat this account
// can write to. Groups must be joined; users must be known contacts or
// registered on WhatsApp.
func (m *Manager) ResolveChatDirect(ctx context.Context, canonicalID string) (dispatch.Chat, error) {
	client, err := m.readyClient()
	if err != nil {
		return dispatch.Chat{}, err
	}
	jid, err := ComposeJID(canonicalID)
	if err != nil {
		return dispatch.Chat{}, err
	}

	switch jid.Server {
	case types.GroupServer:
		info, err := client.GetGroupInfo(ctx, jid)
		if err != nil {
			return dispatch.Chat{}, err
		}
		return dispatch.Chat{ID: CanonicalID(jid), Name: info.Name, IsGroup: true, Participants: len(info.Participants)}, nil
	case types.DefaultUserServer:
		if contact, err := client.Store.Contacts.GetContact(ctx, jid); err == nil && contact.Found {
			return dispatch.Chat{ID: CanonicalID(jid), Name: contactName(contact)}, nil
		}
		info, err := m.isOnWhatsApp(ctx, client, jid.User)
		if err != nil {
			return dispatch.Chat{}, err
		}
		return dispatch.Chat{ID: CanonicalID(info.JID)}, nil
	case types.HiddenUserServer:
		if contact, err := client.Store.Contacts.GetContact(ctx, jid); err == nil && contact.Found {
			return dispatch.Chat{ID: jid.String(), Name: contactName(contact)}, nil
		}
		return dispatch.Chat{}, fmt.Errorf("unknown lid chat %s", jid.User)
	default:
		return dispatch.Chat{}, fmt.Errorf("unsupported chat server %q", jid.Server)
	}
}

// LookupNumberIdentity asks the server which account a phone number maps to.
func (m *Manager) LookupNumberIdentity(ctx context.Context, number string) (any, error) {
	client, err := m.readyClient()
	if err != nil {
		return nil, err
	}
	info, err := m.isOnWhatsApp(ctx, client, number)
	if err != nil {
		return nil, err
	}
	return dispatch.IdentityRecord{
		Serialized: CanonicalID(info.JID),
		User:       info.JID.User,
		Server:     "c.us",
	}, nil
}

func (m *Manager) isOnWhatsApp(ctx context.Context, client *whatsmeow.Client, number string) (types.IsOnWhatsAppResponse, error) {
	number = DecomposeJID(number)
	if number == "" {
		return types.IsOnWhatsAppResponse{}, ErrEmptyJID
	}
	if err := m.lookups.Wait(ctx); err != nil {
		return types.IsOnWhatsAppResponse{}, err
	}
	infos, err := client.IsOnWhatsApp(ctx, []string{"+" + number})
	if err != nil {
		return types.IsOnWhatsAppResponse{}, err
	}
	if len(infos) == 0 || !infos[0].IsIn {
		return types.IsOnWhatsAppResponse{}, ErrNotOnWhatsApp
	}
	return infos[0], nil
}

// scanMaxAge bounds how stale the listing behind a resolver chat scan may be.
const scanMaxAge = 30 * time.Second

func (m *Manager) ListAllChats(ctx context.Context) ([]dispatch.Chat, error) {
	if _, err := m.readyClient(); err != nil {
		return nil, err
	}
	return m.chats.GetWithin(ctx, scanMaxAge)
}

// Groups returns joined groups, capped at the configured list size.
func (m *Manager) Groups(ctx context.Context, refresh bool) ([]dispatch.Chat, error) {
	if _, err := m.readyClient(); err != nil {
		return nil, err
	}
	chats, err := m.chats.Get(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return filterChats(chats, true, m.cfg.ChatListMax), nil
}

func (m *Manager) Contacts(ctx context.Context, refresh bool) ([]dispatch.Chat, error) {
	if _, err := m.readyClient(); err != nil {
		return nil, err
	}
	chats, err := m.chats.Get(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return filterChats(chats, false, m.cfg.ChatListMax), nil
}

// RefreshChats reloads the chat cache; used by the background routine.
func (m *Manager) RefreshChats(ctx context.Context) (int, error) {
	if _, err := m.readyClient(); err != nil {
		return 0, err
	}
	chats, err := m.chats.Get(ctx, true)
	return len(chats), err
}

func (m *Manager) loadChats(ctx context.Context) ([]dispatch.Chat, error) {
	client, err := m.readyClient()
	if err != nil {
		return nil, err
	}

	groups, err := client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list joined groups: %w", err)
	}
	contacts, err := client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	chats := make([]dispatch.Chat, 0, len(groups)+len(contacts))
	for _, g := range groups {
		if g == nil || g.JID.IsEmpty() {
			continue
		}
		chats = append(chats, dispatch.Chat{ID: CanonicalID(g.JID), Name: g.Name, IsGroup: true, Participants: len(g.Participants)})
	}
	for jid, c := range contacts {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		chats = append(chats, dispatch.Chat{ID: CanonicalID(jid), Name: contactName(c)})
	}
	return chats, nil
}

func contactName(c types.ContactInfo) string {
	for _, name := range []string{c.FullName, c.FirstName, c.PushName, c.BusinessName} {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return ""
}

func (m *Manager) NewMessageID() string {
	if client, err := m.currentClient(); err == nil {
		return string(client.GenerateMessageID())
	}
	return "3EB0" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:18]
}

func (m *Manager) SendText(ctx context.Context, canonicalID string, messageID string, text string) (dispatch.SentMessage, error) {
	client, err := m.readyClient()
	if err != nil {
		return dispatch.SentMessage{}, err
	}
	jid, err := ComposeJID(canonicalID)
	if err != nil {
		return dispatch.SentMessage{}, err
	}

	msgContent := &waE2E.Message{
		Conversation: proto.String(text),
	}
	return m.sendMessage(ctx, client, jid, messageID, msgContent)
}

func (m *Manager) SendImage(ctx context.Context, canonicalID string, messageID string, media dispatch.Media, caption string) (dispatch.SentMessage, error) {
	client, err := m.readyClient()
	if err != nil {
		return dispatch.SentMessage{}, err
	}
	jid, err := ComposeJID(canonicalID)
	if err != nil {
		return dispatch.SentMessage{}, err
	}

	img, err := prepareImage(media.Data, media.MimeType, m.cfg.Media)
	if err != nil {
		return dispatch.SentMessage{}, err
	}

	imageUploaded, err := client.Upload(ctx, img.Data, whatsmeow.MediaImage)
	if err != nil {
		return dispatch.SentMessage{}, fmt.Errorf("Error While Uploading Media to WhatsApp Server: %w", err)
	}
	imageThumbUploaded, err := client.Upload(ctx, img.Thumbnail, whatsmeow.MediaLinkThumbnail)
	if err != nil {
		return dispatch.SentMessage{}, fmt.Errorf("Error while Uploading Image Thumbnail to WhatsApp Server: %w", err)
	}

	imageMessage := &waE2E.ImageMessage{
		URL:                 proto.String(imageUploaded.URL),
		DirectPath:          proto.String(imageUploaded.DirectPath),
		Mimetype:            proto.String(img.MimeType),
		FileLength:          proto.Uint64(imageUploaded.FileLength),
		FileSHA256:          imageUploaded.FileSHA256,
		FileEncSHA256:       imageUploaded.FileEncSHA256,
		MediaKey:            imageUploaded.MediaKey,
		JPEGThumbnail:       img.Thumbnail,
		ThumbnailDirectPath: proto.String(imageThumbUploaded.DirectPath),
		ThumbnailSHA256:     imageThumbUploaded.FileSHA256,
		ThumbnailEncSHA256:  imageThumbUploaded.FileEncSHA256,
	}
	if caption != "" {
		imageMessage.Caption = proto.String(caption)
	}

	return m.sendMessage(ctx, client, jid, messageID, &waE2E.Message{ImageMessage: imageMessage})
}

// sendMessage sends through the circuit breaker so a dead socket fails fast.
func (m *Manager) sendMessage(ctx context.Context, client *whatsmeow.Client, jid types.JID, messageID string, msg *waE2E.Message) (dispatch.SentMessage, error) {
	out, err := m.breaker.Execute(func() (interface{}, error) {
		return client.SendMessage(ctx, jid, msg, whatsmeow.SendRequestExtra{ID: types.MessageID(messageID)})
	})
	if err != nil {
		return dispatch.SentMessage{}, err
	}
	resp := out.(whatsmeow.SendResponse)
	return dispatch.SentMessage{
		ID:        messageID,
		Ack:       dispatch.AckServer,
		Timestamp: resp.Timestamp,
	}, nil
}
