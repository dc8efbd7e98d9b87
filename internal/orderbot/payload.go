package orderbot

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"
	"time"
)

const (
	InputText  = "text"
	InputAudio = "audio"
	InputImage = "image"

	audioContentType = "audio/mp3"
	audioFileName    = "voice_message.mp3"
	imageContentType = "image/jpeg"
	imageFileName    = "image.jpg"

	textTimeout       = 10 * time.Second
	attachmentTimeout = 15 * time.Second
)

// Source yields the bytes of a local capture.
type Source interface {
	Open() (io.ReadCloser, error)
}

// FileSource reads from a path on disk.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// BytesSource serves an in-memory buffer.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Payload is one of Text, Audio or Image.
type Payload interface {
	InputType() string
	timeout() time.Duration
	writeParts(w *multipart.Writer, thread string) error
}

// Text is a typed chat message.
type Text struct {
	Content string
}

func (Text) InputType() string { return InputText }
func (Text) timeout() time.Duration { return textTimeout }

func (p Text) writeParts(w *multipart.Writer, thread string) error {
	if strings.TrimSpace(p.Content) == "" {
		return &EncodingError{InputType: InputText, Reason: "empty text"}
	}
	if err := w.WriteField("input_type", InputText); err != nil {
		return err
	}
	if err := w.WriteField("text", p.Content); err != nil {
		return err
	}
	return writeThread(w, thread)
}

// Audio is a recorded voice message. Empty ContentType and FileName default to
// audio/mp3 and voice_message.mp3.
type Audio struct {
	Source      Source
	ContentType string
	FileName    string
}

func (Audio) InputType() string { return InputAudio }
func (Audio) timeout() time.Duration { return attachmentTimeout }

func (p Audio) writeParts(w *multipart.Writer, thread string) error {
	return writeAttachment(w, thread, attachment{
		inputType:   InputAudio,
		source:      p.Source,
		contentType: orDefault(p.ContentType, audioContentType),
		fileName:    orDefault(p.FileName, audioFileName),
	})
}

// Image is a picked photo. Empty ContentType and FileName default to image/jpeg
// and image.jpg.
type Image struct {
	Source      Source
	ContentType string
	FileName    string
}

func (Image) InputType() string { return InputImage }
func (Image) timeout() time.Duration { return attachmentTimeout }

func (p Image) writeParts(w *multipart.Writer, thread string) error {
	return writeAttachment(w, thread, attachment{
		inputType:   InputImage,
		source:      p.Source,
		contentType: orDefault(p.ContentType, imageContentType),
		fileName:    orDefault(p.FileName, imageFileName),
	})
}

type attachment struct {
	inputType   string
	source      Source
	contentType string
	fileName    string
}

func writeAttachment(w *multipart.Writer, thread string, a attachment) error {
	if a.source == nil {
		return &EncodingError{InputType: a.inputType, Reason: "missing source"}
	}
	data, err := readSource(a.source)
	if err != nil {
		return &EncodingError{InputType: a.inputType, Reason: "unreadable source", Err: err}
	}
	if len(data) == 0 {
		return &EncodingError{InputType: a.inputType, Reason: "empty source"}
	}

	if err := w.WriteField("input_type", a.inputType); err != nil {
		return err
	}
	if err := writeThread(w, thread); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(a.fileName)))
	h.Set("Content-Type", a.contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

func readSource(src Source) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func writeThread(w *multipart.Writer, thread string) error {
	if thread == "" {
		return nil
	}
	return w.WriteField("thread_id", thread)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encode renders payload as a complete multipart body. Nothing is returned unless
// every part was written.
func encode(payload Payload, thread string) ([]byte, string, error) {
	if payload == nil {
		return nil, "", &EncodingError{Reason: "missing payload"}
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := payload.writeParts(w, thread); err != nil {
		return nil, "", asEncodingError(payload.InputType(), err)
	}
	if err := w.Close(); err != nil {
		return nil, "", asEncodingError(payload.InputType(), err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
