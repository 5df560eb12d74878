// Package protocol defines the envelopes exchanged over an open data channel
// and their JSON wire form.
//
// Envelope is a closed tagged union: Chat, File, and the explicit default arm
// Unknown for any tag that is neither. Unknown envelopes are delivered through
// the file path on purpose, so that payloads from peers that tag files with
// their MIME type still land in the asset collection.
package protocol

// Wire tags.
const (
	TypeMessage = "message"
	TypeFile    = "file"
)

// DefaultMIMEType is used when a file envelope carries no MIME type.
const DefaultMIMEType = "application/octet-stream"

// Envelope is implemented by Chat, File and Unknown only.
type Envelope interface {
	// Tag returns the wire "type" value.
	Tag() string
	isEnvelope()
}

// Chat is a text message.
type Chat struct {
	Content string
}

func (Chat) Tag() string { return TypeMessage }
func (Chat) isEnvelope() {}

// File is a whole file, payload inline.
type File struct {
	ID       string
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

func (File) Tag() string { return TypeFile }
func (File) isEnvelope() {}

// Unknown carries a payload whose tag was neither "message" nor "file",
// together with whatever file-shaped fields it had. Missing fields are left
// zero; the receiver decides the fallbacks.
type Unknown struct {
	Type string
	File File
}

func (u Unknown) Tag() string { return u.Type }
func (Unknown) isEnvelope()   {}

// AsFile returns the file view of env for the file-receive path. It reports
// false for Chat.
func AsFile(env Envelope) (File, bool) {
	switch e := env.(type) {
	case File:
		return e, true
	case Unknown:
		return e.File, true
	default:
		return File{}, false
	}
}
