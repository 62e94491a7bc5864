package intake

import "strings"

// Update is one inbound webhook delivery in the messenger's wire shape.
type Update struct {
	UpdateID      *int64   `json:"update_id,omitempty"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

type Message struct {
	MessageID      int64       `json:"message_id"`
	Chat           Chat        `json:"chat"`
	From           *User       `json:"from,omitempty"`
	Text           string      `json:"text,omitempty"`
	Caption        string      `json:"caption,omitempty"`
	Entities       []Entity    `json:"entities,omitempty"`
	Photo          []PhotoSize `json:"photo,omitempty"`
	Document       *Document   `json:"document,omitempty"`
	ReplyToMessage *Message    `json:"reply_to_message,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// EventMessage returns the message carried by the update, preferring a new
// message over an edit.
func (u Update) EventMessage() *Message {
	if u.Message != nil {
		return u.Message
	}
	return u.EditedMessage
}

func (m *Message) IsGroup() bool {
	if m == nil {
		return false
	}
	switch m.Chat.Type {
	case "group", "supergroup":
		return true
	default:
		return false
	}
}

func (m *Message) HasFile() bool {
	return m != nil && (len(m.Photo) > 0 || m.Document != nil)
}

func (m *Message) mentions() bool {
	if strings.Contains(m.Text, "@") || strings.Contains(m.Caption, "@") {
		return true
	}
	for _, entity := range m.Entities {
		if entity.Type == "mention" {
			return true
		}
	}
	return false
}

// repliesTo reports whether m answers a message written by the bot. A zero
// botID falls back to the author's bot flag.
func (m *Message) repliesTo(botID int64) bool {
	if m.ReplyToMessage == nil || m.ReplyToMessage.From == nil {
		return false
	}
	author := m.ReplyToMessage.From
	if botID != 0 {
		return author.ID == botID
	}
	return author.IsBot
}

type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment is the resolved proof-of-purchase file of a message.
type Attachment struct {
	Kind     AttachmentKind
	FileID   string
	FileName string
	MimeType string
}

const (
	defaultPhotoName    = "invoice.jpg"
	defaultDocumentName = "invoice.bin"
	defaultMimeType     = "image/jpeg"
)

// ResolveAttachment picks the largest photo variant when photos are present,
// else the document. It reports false when neither carries a file id.
func ResolveAttachment(m *Message) (Attachment, bool) {
	if m == nil {
		return Attachment{}, false
	}
	if len(m.Photo) > 0 {
		best := m.Photo[len(m.Photo)-1]
		for _, p := range m.Photo {
			if photoArea(p) > photoArea(best) {
				best = p
			}
		}
		if strings.TrimSpace(best.FileID) == "" {
			return Attachment{}, false
		}
		return Attachment{
			Kind:     AttachmentPhoto,
			FileID:   best.FileID,
			FileName: defaultPhotoName,
			MimeType: defaultMimeType,
		}, true
	}
	if m.Document != nil && strings.TrimSpace(m.Document.FileID) != "" {
		name := strings.TrimSpace(m.Document.FileName)
		if name == "" {
			name = defaultDocumentName
		}
		mime := strings.TrimSpace(m.Document.MimeType)
		if mime == "" {
			mime = defaultMimeType
		}
		return Attachment{
			Kind:     AttachmentDocument,
			FileID:   m.Document.FileID,
			FileName: name,
			MimeType: mime,
		}, true
	}
	return Attachment{}, false
}

func photoArea(p PhotoSize) int64 {
	return int64(p.Width) * int64(p.Height)
}
