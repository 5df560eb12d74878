package protocol

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

// TestChatRoundTrip verifies that encoding then decoding a chat envelope
// yields identical content.
func TestChatRoundTrip(t *testing.T) {
	testCases := []string{
		"",
		"hi",
		"multi\nline\ttext",
		`quotes " and \ backslashes`,
		"emoji 🚀 and CJK 你好",
		strings.Repeat("x", 64*1024),
	}

	for _, content := range testCases {
		name := content
		if len(name) > 20 {
			name = name[:20]
		}
		t.Run(name, func(t *testing.T) {
			raw, err := Encode(Chat{Content: content})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			env, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			chat, ok := env.(Chat)
			if !ok {
				t.Fatalf("decoded %T, want Chat", env)
			}
			if chat.Content != content {
				t.Errorf("content mismatch: got %q, want %q", chat.Content, content)
			}
		})
	}
}

// TestFileRoundTrip verifies name, MIME type and payload survive the wire
// byte-for-byte.
func TestFileRoundTrip(t *testing.T) {
	binary := make([]byte, 4096)
	for i := range binary {
		binary[i] = byte(i * 7)
	}

	testCases := []struct {
		name string
		file File
	}{
		{"empty payload", File{ID: "1", Name: "empty.bin", MIMEType: "application/octet-stream", Data: []byte{}}},
		{"text", File{ID: "2", Name: "notes.txt", MIMEType: "text/plain; charset=utf-8", Data: []byte("hello\n")}},
		{"binary", File{ID: "3", Name: "blob.dat", MIMEType: "application/octet-stream", Data: binary}},
		{"unicode name", File{ID: "4", Name: "报告 final (2).pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(tc.file)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			env, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			got, ok := env.(File)
			if !ok {
				t.Fatalf("decoded %T, want File", env)
			}
			if got.Name != tc.file.Name {
				t.Errorf("name: got %q, want %q", got.Name, tc.file.Name)
			}
			if got.MIMEType != tc.file.MIMEType {
				t.Errorf("mime: got %q, want %q", got.MIMEType, tc.file.MIMEType)
			}
			if got.ID != tc.file.ID {
				t.Errorf("id: got %q, want %q", got.ID, tc.file.ID)
			}
			if !bytes.Equal(got.Data, tc.file.Data) {
				t.Errorf("payload differs (%d vs %d bytes)", len(got.Data), len(tc.file.Data))
			}
			if got.Size != int64(len(tc.file.Data)) {
				t.Errorf("size: got %d, want %d", got.Size, len(tc.file.Data))
			}
		})
	}
}

// TestEncodeWireShape pins the JSON field names peers rely on.
func TestEncodeWireShape(t *testing.T) {
	raw, err := Encode(File{ID: "abc", Name: "a.txt", MIMEType: "text/plain", Data: []byte("hi")})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"type":     "file",
		"name":     "a.txt",
		"mimeType": "text/plain",
		"size":     float64(2),
		"data":     base64.StdEncoding.EncodeToString([]byte("hi")),
		"id":       "abc",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("field %q = %v, want %v", k, m[k], v)
		}
	}

	raw, err = Encode(Chat{Content: "hi"})
	if err != nil {
		t.Fatalf("Encode chat: %v", err)
	}
	if string(raw) != `{"type":"message","content":"hi"}` {
		t.Errorf("chat wire = %s", raw)
	}
}

// TestDecodeUnknownTag verifies non-message, non-file tags take the explicit
// Unknown arm and still expose a file view.
func TestDecodeUnknownTag(t *testing.T) {
	env, err := Decode([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u, ok := env.(Unknown)
	if !ok {
		t.Fatalf("decoded %T, want Unknown", env)
	}
	if u.Tag() != "ping" {
		t.Errorf("Tag() = %q, want ping", u.Tag())
	}
	f, ok := AsFile(env)
	if !ok {
		t.Fatal("AsFile(Unknown) = false")
	}
	if f.ID != "" || f.Name != "" || len(f.Data) != 0 {
		t.Errorf("unexpected file fields: %+v", f)
	}
}

// TestDecodeBrowserPayload covers a file tagged with its MIME type, carrying
// a data: URL and a numeric id.
func TestDecodeBrowserPayload(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	raw := `{"type":"image/png","name":"cat.png","size":4,` +
		`"data":"data:image/png;base64,` + base64.StdEncoding.EncodeToString(payload) + `",` +
		`"id":1717171717171.123}`

	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, ok := AsFile(env)
	if !ok {
		t.Fatalf("AsFile(%T) = false", env)
	}
	if f.MIMEType != "image/png" {
		t.Errorf("mime from data URL = %q", f.MIMEType)
	}
	if f.ID != "1717171717171.123" {
		t.Errorf("numeric id = %q", f.ID)
	}
	if !bytes.Equal(f.Data, payload) {
		t.Errorf("payload = %v", f.Data)
	}
}

func TestDecodeUnpaddedBase64(t *testing.T) {
	raw := `{"type":"file","name":"x","data":"aGk","id":"1"}`
	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f := env.(File); string(f.Data) != "hi" {
		t.Errorf("data = %q, want hi", f.Data)
	}
}

func TestDecodeMalformed(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"empty", ``},
		{"array", `[1,2]`},
		{"missing type", `{"content":"hi"}`},
		{"numeric type", `{"type":5}`},
		{"null type", `{"type":null}`},
		{"bad base64", `{"type":"file","data":"***"}`},
		{"bad data url", `{"type":"file","data":"data:text/plain,hi"}`},
		{"object id", `{"type":"file","id":{"a":1}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Decode([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected error, got %T %+v", env, env)
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestEncodeUnknownKeepsTag(t *testing.T) {
	raw, err := Encode(Unknown{Type: "image/jpeg", File: File{Name: "a.jpg", Data: []byte{1}}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Tag() != "image/jpeg" {
		t.Errorf("tag = %q", env.Tag())
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Error("Encode(nil) succeeded")
	}
}

func TestAsFileChat(t *testing.T) {
	if _, ok := AsFile(Chat{Content: "x"}); ok {
		t.Error("AsFile(Chat) = true")
	}
}
