package intake

import (
	"encoding/json"
	"testing"
)

func TestResolveAttachmentPrefersLargestPhoto(t *testing.T) {
	msg := &Message{
		Photo: []PhotoSize{
			{FileID: "a", Width: 800, Height: 600},
			{FileID: "b", Width: 90, Height: 90},
		},
		Document: &Document{FileID: "doc"},
	}
	got, ok := ResolveAttachment(msg)
	if !ok {
		t.Fatalf("expected attachment")
	}
	if got.Kind != AttachmentPhoto || got.FileID != "a" || got.FileName != "invoice.jpg" || got.MimeType != "image/jpeg" {
		t.Fatalf("unexpected attachment %+v", got)
	}
}

func TestResolveAttachmentDocument(t *testing.T) {
	got, ok := ResolveAttachment(&Message{Document: &Document{FileID: "doc", FileName: "bill.pdf", MimeType: "application/pdf"}})
	if !ok || got.Kind != AttachmentDocument || got.FileName != "bill.pdf" || got.MimeType != "application/pdf" {
		t.Fatalf("unexpected attachment %+v %v", got, ok)
	}

	got, ok = ResolveAttachment(&Message{Document: &Document{FileID: "doc"}})
	if !ok || got.FileName != "invoice.bin" || got.MimeType != "image/jpeg" {
		t.Fatalf("expected document defaults, got %+v", got)
	}
}

func TestResolveAttachmentMissing(t *testing.T) {
	cases := []*Message{
		nil,
		{},
		{Document: &Document{FileID: " "}},
		{Photo: []PhotoSize{{FileID: "", Width: 10, Height: 10}}},
	}
	for i, msg := range cases {
		if _, ok := ResolveAttachment(msg); ok {
			t.Fatalf("case %d: expected no attachment", i)
		}
	}
}

func TestUpdateDecoding(t *testing.T) {
	raw := `{"update_id":9,"edited_message":{"message_id":3,"chat":{"id":-100,"type":"group"},"text":"@bot truck","reply_to_message":{"from":{"id":77,"is_bot":true}}}}`
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := u.EventMessage()
	if msg == nil || !msg.IsGroup() || !msg.mentions() || !msg.repliesTo(77) {
		t.Fatalf("unexpected decoded message %+v", msg)
	}
	if updateKey(u) != "9" {
		t.Fatalf("expected key 9, got %q", updateKey(u))
	}
	if updateKey(Update{}) != "" {
		t.Fatalf("expected empty key without an update id")
	}
}
