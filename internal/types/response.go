package types

import "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"

type ResponseSendBatch struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Results dispatch.BatchResult `json:"results"`
}

type ResponseSendTextToContact struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ContactID string `json:"contactId"`
	MessageID string `json:"messageId"`
	Delivered *bool  `json:"delivered"`
	Ack       *int   `json:"ack"`
}

type ResponseSendFailure struct {
	Success  bool               `json:"success"`
	Error    string             `json:"error"`
	Attempts []dispatch.Attempt `json:"attempts,omitempty"`
}

type PrepareResults struct {
	Prepared []dispatch.Preparation `json:"prepared"`
	Failed   []dispatch.Preparation `json:"failed"`
	Total    int                    `json:"total"`
}

type ResponseTestSend struct {
	ChatID    string             `json:"chatId"`
	Method    string             `json:"method"`
	MessageID string             `json:"messageId,omitempty"`
	Sent      bool               `json:"sent"`
	Attempts  []dispatch.Attempt `json:"attempts"`
}

type ResponseHealth struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
	Uptime string `json:"uptime"`
	Number string `json:"number,omitempty"`
}
