package email

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"golang.org/x/net/html"
)

// Message holds the text of a mail message relevant to categorization
type Message struct {
	Subject     string
	Body        string
	Attachments []Attachment
}

// Attachment describes a skipped non-text part
type Attachment struct {
	Filename    string
	ContentType string
}

// Text returns the subject and body as one document
func (m *Message) Text() string {
	if m.Subject == "" {
		return m.Body
	}
	return m.Subject + "\n" + m.Body
}

// Parser extracts readable text from MIME messages
type Parser struct {
	// Maximum bytes of body text kept, 0 = unlimited
	MaxBodyBytes int
}

// NewParser creates a new message parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseFromFile parses a message from a file
func (p *Parser) ParseFromFile(filepath string) (*Message, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse parses a full message, headers included
func (p *Parser) Parse(r io.Reader) (*Message, error) {
	entity, err := message.Read(r)
	if err != nil && !tolerable(err) {
		return nil, fmt.Errorf("failed to parse message: %v", err)
	}

	msg := &Message{Subject: decodeSubject(entity.Header)}
	if err := p.walk(entity, msg); err != nil {
		return nil, fmt.Errorf("failed to parse body: %v", err)
	}
	return msg, nil
}

// ParseBody parses a body whose headers were delivered separately, as
// they are to a milter
func (p *Parser) ParseBody(contentType, transferEncoding string, body io.Reader) (*Message, error) {
	var h message.Header
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if transferEncoding != "" {
		h.Set("Content-Transfer-Encoding", transferEncoding)
	}

	entity, err := message.New(h, body)
	if err != nil && !tolerable(err) {
		return nil, fmt.Errorf("failed to parse body: %v", err)
	}

	msg := &Message{}
	if err := p.walk(entity, msg); err != nil {
		return nil, fmt.Errorf("failed to parse body: %v", err)
	}
	return msg, nil
}

func (p *Parser) walk(entity *message.Entity, msg *Message) error {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil && !tolerable(err) {
				return err
			}
			if err := p.walk(part, msg); err != nil {
				return err
			}
		}
	}

	mediaType, _, err := entity.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	disposition, params, _ := entity.Header.ContentDisposition()

	if disposition == "attachment" || !strings.HasPrefix(mediaType, "text/") {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    params["filename"],
			ContentType: mediaType,
		})
		return nil
	}

	var text string
	if mediaType == "text/html" {
		text, err = htmlText(entity.Body)
	} else {
		var data []byte
		data, err = io.ReadAll(entity.Body)
		text = string(data)
	}
	if err != nil {
		return err
	}

	p.appendBody(msg, text)
	return nil
}

func (p *Parser) appendBody(msg *Message, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if msg.Body != "" {
		text = "\n" + text
	}
	if p.MaxBodyBytes > 0 {
		room := p.MaxBodyBytes - len(msg.Body)
		if room <= 0 {
			return
		}
		if len(text) > room {
			text = text[:room]
		}
	}
	msg.Body += text
}

// htmlText returns the visible text of an HTML document
func htmlText(r io.Reader) (string, error) {
	var b strings.Builder
	z := html.NewTokenizer(r)
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return b.String(), nil
			}
			return b.String(), z.Err()
		case html.StartTagToken:
			if name, _ := z.TagName(); invisible(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); invisible(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func invisible(tag string) bool {
	return tag == "script" || tag == "style" || tag == "head"
}

func decodeSubject(h message.Header) string {
	if subject, err := h.Text("Subject"); err == nil {
		return subject
	}
	return h.Get("Subject")
}

// tolerable reports errors after which the entity is still readable
func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
