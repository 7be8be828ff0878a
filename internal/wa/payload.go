package wa

import "encoding/json"

// Envelope is the Meta webhook payload. Only the fields the pipelines read
// are modeled; everything else survives round-trips inside the raw message
// log.
type Envelope struct {
	Entry []Entry `json:"entry"`
}

// Entry is one webhook entry.
type Entry struct {
	Changes []Change `json:"changes"`
}

// Change carries the actual message batch.
type Change struct {
	Value Value `json:"value"`
}

// Value holds contacts, line metadata and messages.
type Value struct {
	Contacts []Contact `json:"contacts"`
	Metadata  Metadata  `json:"metadata"`
	Messages  []Message `json:"messages"`
}

// Contact identifies the sender.
type Contact struct {
	WaID string `json:"wa_id"`
}

// Metadata identifies the receiving phone line.
type Metadata struct {
	PhoneNumberID string `json:"phone_number_id"`
}

// Message is one inbound message.
type Message struct {
	From  string `json:"from"`
	ID    string `json:"id"`
	Type  string `json:"type"`
	Text  *Text  `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
}

// Image references provider-side stored media.
type Image struct {
	ID string `json:"id"`
}

// Text is the message body. Some payload variants carry text as a bare
// string instead of {"body": ...}; both decode.
type Text struct {
	Body string `json:"body"`
}

// UnmarshalJSON accepts either {"body": "..."} or a bare JSON string.
func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Body = s
		return nil
	}
	type alias Text
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	t.Body = a.Body
	return nil
}

func (e *Envelope) value() *Value {
	if len(e.Entry) == 0 || len(e.Entry[0].Changes) == 0 {
		return nil
	}
	return &e.Entry[0].Changes[0].Value
}

// WaID returns the sender id, or "" when the payload carries none.
func (e *Envelope) WaID() string {
	v := e.value()
	if v == nil || len(v.Contacts) == 0 {
		return ""
	}
	return v.Contacts[0].WaID
}

// PhoneNumberID returns the receiving line id, or "" when absent.
func (e *Envelope) PhoneNumberID() string {
	v := e.value()
	if v == nil {
		return ""
	}
	return v.Metadata.PhoneNumberID
}

// FirstMessage returns the first message in the envelope, or nil.
func (e *Envelope) FirstMessage() *Message {
	v := e.value()
	if v == nil || len(v.Messages) == 0 {
		return nil
	}
	return &v.Messages[0]
}
