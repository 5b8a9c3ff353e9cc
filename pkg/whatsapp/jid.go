package whatsapp

import (
	"errors"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
)

var ErrEmptyJID = errors.New("whatsapp id is empty")

// ComposeJID maps a gateway identifier (user@c.us, group@g.us, a bare number
// or a raw whatsmeow JID) to the JID whatsmeow addresses.
func ComposeJID(id string) (types.JID, error) {
	id = strings.TrimSpace(id)
	switch {
	case strings.HasSuffix(id, dispatch.ContactSuffix):
		return userJID(strings.TrimSuffix(id, dispatch.ContactSuffix), types.DefaultUserServer)
	case strings.HasSuffix(id, dispatch.GroupSuffix):
		return userJID(strings.TrimSuffix(id, dispatch.GroupSuffix), types.GroupServer)
	case strings.ContainsRune(id, '@'):
		jid, err := types.ParseJID(id)
		if err != nil {
			return types.EmptyJID, err
		}
		if jid.User == "" {
			return types.EmptyJID, ErrEmptyJID
		}
		return jid, nil
	}

	id = DecomposeJID(id)
	if strings.ContainsRune(id, '-') || len(id) >= 18 {
		return userJID(id, types.GroupServer)
	}
	return userJID(id, types.DefaultUserServer)
}

// CanonicalID is the inverse of ComposeJID for user and group JIDs.
func CanonicalID(jid types.JID) string {
	jid = jid.ToNonAD()
	switch jid.Server {
	case types.DefaultUserServer:
		return jid.User + dispatch.ContactSuffix
	case types.GroupServer:
		return jid.User + dispatch.GroupSuffix
	default:
		return jid.String()
	}
}

// DecomposeJID strips the server part and any leading '+'.
func DecomposeJID(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	id = strings.TrimSpace(id)
	return strings.TrimPrefix(id, "+")
}

func userJID(user string, server string) (types.JID, error) {
	user = strings.TrimPrefix(strings.TrimSpace(user), "+")
	if user == "" {
		return types.EmptyJID, ErrEmptyJID
	}
	return types.NewJID(user, server), nil
}
