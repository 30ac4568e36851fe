// Package greenapi speaks the Green API WhatsApp gateway protocol: inbound
// webhook payloads and the outbound send endpoint. Payload field names must
// stay bit-for-bit compatible with the provider.
package greenapi

import "strings"

// Webhook event types.
const (
	EventIncomingMessage = "incomingMessageReceived"
	EventOutgoingMessage = "outgoingMessageReceived"
)

// Message type discriminators.
const (
	TypeText     = "textMessage"
	TypeImage    = "imageMessage"
	TypeVideo    = "videoMessage"
	TypeDocument = "documentMessage"
	TypeAudio    = "audioMessage"
)

// WebhookPayload is the provider's webhook body.
type WebhookPayload struct {
	TypeWebhook  string       `json:"typeWebhook"`
	InstanceData InstanceData `json:"instanceData"`
	IDMessage    string       `json:"idMessage"`
	SenderData   SenderData   `json:"senderData"`
	MessageData  MessageData  `json:"messageData"`
}

// InstanceData identifies the WhatsApp business instance the event belongs to.
type InstanceData struct {
	IDInstance int64  `json:"idInstance"`
	Wid        string `json:"wid"`
}

// SenderData identifies the sender and, for outgoing events, the chat partner.
type SenderData struct {
	Sender     string `json:"sender"`
	ChatID     string `json:"chatId"`
	SenderName string `json:"senderName"`
}

// MessageData is discriminated by TypeMessage.
type MessageData struct {
	TypeMessage     string           `json:"typeMessage"`
	TextMessageData *TextMessageData `json:"textMessageData,omitempty"`
	FileMessageData *FileMessageData `json:"fileMessageData,omitempty"`
}

// TextMessageData carries a plain text message.
type TextMessageData struct {
	TextMessage string `json:"textMessage"`
}

// FileMessageData carries media messages of every kind.
type FileMessageData struct {
	DownloadURL string `json:"downloadUrl"`
	Caption     string `json:"caption"`
	FileName    string `json:"fileName"`
	MimeType    string `json:"mimeType"`
}

// Inbound is the provider-independent view of one webhook event, extracted
// once at the HTTP boundary and consumed by the dialogue engine.
type Inbound struct {
	Event      string
	MessageID  string
	InstanceID int64
	Sender     string // raw chat id, "<digits>@c.us"
	ChatID     string // chat partner for outgoing events
	Text       string
	MediaURL   string
	MediaType  string // "image", "video", "document", "audio"
	Caption    string
}

// HasMedia reports whether the event carries a downloadable attachment.
func (in Inbound) HasMedia() bool { return in.MediaURL != "" }

// Extract flattens a webhook payload. The returned Inbound has Text set to
// the message text or the media caption, matching the provider's semantics.
func Extract(p WebhookPayload) Inbound {
	in := Inbound{
		Event:      p.TypeWebhook,
		MessageID:  p.IDMessage,
		InstanceID: p.InstanceData.IDInstance,
		Sender:     strings.TrimSpace(p.SenderData.Sender),
		ChatID:     strings.TrimSpace(p.SenderData.ChatID),
	}

	switch p.MessageData.TypeMessage {
	case TypeText:
		if p.MessageData.TextMessageData != nil {
			in.Text = p.MessageData.TextMessageData.TextMessage
		}
	case TypeImage, TypeVideo, TypeDocument, TypeAudio:
		in.MediaType = mediaKind(p.MessageData.TypeMessage)
		if p.MessageData.FileMessageData != nil {
			in.MediaURL = p.MessageData.FileMessageData.DownloadURL
			in.Caption = p.MessageData.FileMessageData.Caption
			in.Text = p.MessageData.FileMessageData.Caption
		}
	}
	return in
}

func mediaKind(typeMessage string) string {
	switch typeMessage {
	case TypeImage:
		return "image"
	case TypeVideo:
		return "video"
	case TypeDocument:
		return "document"
	case TypeAudio:
		return "audio"
	default:
		return ""
	}
}
