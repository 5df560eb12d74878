package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// DecodeError reports an inbound payload that cannot be classified.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed envelope: %s: %v", e.Reason, e.Err)
	}
	return "malformed envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

type chatWire struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type fileWire struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Data     string `json:"data"`
	ID       string `json:"id"`
}

// inbound accepts what any peer might send: id may be a number, and data may
// be a data: URL instead of bare base64.
type inbound struct {
	Type     *string         `json:"type"`
	Content  string          `json:"content"`
	Name     string          `json:"name"`
	MIMEType string          `json:"mimeType"`
	Data     string          `json:"data"`
	ID       json.RawMessage `json:"id"`
}

// Encode serializes env into its JSON wire form.
func Encode(env Envelope) ([]byte, error) {
	switch e := env.(type) {
	case Chat:
		return json.Marshal(chatWire{Type: TypeMessage, Content: e.Content})
	case File:
		return json.Marshal(fileToWire(TypeFile, e))
	case Unknown:
		return json.Marshal(fileToWire(e.Type, e.File))
	case nil:
		return nil, errors.New("encode: nil envelope")
	default:
		return nil, fmt.Errorf("encode: unsupported envelope %T", env)
	}
}

func fileToWire(tag string, f File) fileWire {
	return fileWire{
		Type:     tag,
		Name:     f.Name,
		MIMEType: f.MIMEType,
		Size:     int64(len(f.Data)),
		Data:     base64.StdEncoding.EncodeToString(f.Data),
		ID:       f.ID,
	}
}

// Decode classifies a raw payload by its type tag. It fails with
// *DecodeError when the payload is not a JSON object with a string tag, or
// when a file payload's data is not base64.
func Decode(raw []byte) (Envelope, error) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}
	if in.Type == nil {
		return nil, &DecodeError{Reason: "missing type"}
	}

	if *in.Type == TypeMessage {
		return Chat{Content: in.Content}, nil
	}

	f, err := in.file()
	if err != nil {
		return nil, err
	}
	if *in.Type == TypeFile {
		return f, nil
	}
	return Unknown{Type: *in.Type, File: f}, nil
}

func (in *inbound) file() (File, error) {
	data, mime, err := decodeData(in.Data)
	if err != nil {
		return File{}, &DecodeError{Reason: "invalid file data", Err: err}
	}
	if in.MIMEType != "" {
		mime = in.MIMEType
	}

	id, err := decodeID(in.ID)
	if err != nil {
		return File{}, &DecodeError{Reason: "invalid file id", Err: err}
	}

	return File{
		ID:       id,
		Name:     in.Name,
		MIMEType: mime,
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

// decodeData accepts bare base64 (padded or not) or a data: URL, returning
// the payload and the MIME type named by the data URL, if any.
func decodeData(s string) ([]byte, string, error) {
	var mime string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", errors.New("unsupported data URL")
		}
		mime = strings.TrimSuffix(header, ";base64")
		s = body
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

// decodeID returns a string id, a number rendered as its literal text, or ""
// when absent.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
		return "", fmt.Errorf("id is neither string nor number: %s", raw)
	}
	return string(raw), nil
}
