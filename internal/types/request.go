package types

import "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"

type RequestSendImage struct {
	ImagePath string `json:"imagePath"`
	Caption   string `json:"caption"`
}

type RequestSendImageToGroup struct {
	GroupID   string `json:"groupId"`
	ImagePath string `json:"imagePath"`
	Caption   string `json:"caption"`
}

type RequestSendTextToGroup struct {
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

type RequestSendTextToContact struct {
	ContactID string `json:"contactId"`
	Text      string `json:"text"`
	TimeoutMs *int   `json:"timeoutMs"`
}

type RequestSendImageToContact struct {
	ContactID string `json:"contactId"`
	ImagePath string `json:"imagePath"`
	Caption   string `json:"caption"`
}

// RequestSendBatch delays are milliseconds; absent or zero values use the defaults.
type RequestSendBatch struct {
	Recipients         []dispatch.Recipient `json:"recipients"`
	ImagePath          string               `json:"imagePath"`
	Text               string               `json:"text"`
	DelayFirstMin      *int                 `json:"delayFirstMin"`
	DelayFirstMax      *int                 `json:"delayFirstMax"`
	DelaySubsequentMin *int                 `json:"delaySubsequentMin"`
	DelaySubsequentMax *int                 `json:"delaySubsequentMax"`
}

// RequestPrepareContacts accepts the older "numbers" field as an alias.
type RequestPrepareContacts struct {
	Contacts []string `json:"contacts"`
	Numbers  []string `json:"numbers"`
}

func (r RequestPrepareContacts) IDs() []string {
	if len(r.Contacts) > 0 {
		return r.Contacts
	}
	return r.Numbers
}

type RequestTestSend struct {
	Recipient string                 `json:"recipient"`
	Number    string                 `json:"number"`
	Type      dispatch.RecipientType `json:"type"`
	Text      string                 `json:"text"`
	Message   string                 `json:"message"`
	DryRun    bool                   `json:"dryRun"`
}

func (r RequestTestSend) RecipientID() string {
	if r.Recipient != "" {
		return r.Recipient
	}
	return r.Number
}

func (r RequestTestSend) Body() string {
	if r.Text != "" {
		return r.Text
	}
	if r.Message != "" {
		return r.Message
	}
	return "oi"
}

// RequestSaveGroups.Path is a bare file name; directories are not accepted.
type RequestSaveGroups struct {
	Path string `json:"path"`
}
