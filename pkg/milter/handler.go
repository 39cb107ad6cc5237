package milter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/d--j/go-milter"

	"github.com/zpam/categorizer/pkg/classifier"
	"github.com/zpam/categorizer/pkg/config"
	"github.com/zpam/categorizer/pkg/email"
	"github.com/zpam/categorizer/pkg/features"
)

// Classifier scores a document's features. *classifier.Context satisfies it
// and is safe to share between milter sessions.
type Classifier interface {
	Classify(ctx context.Context, features []string, defaultCategory string) (classifier.Result, error)
}

// Observer receives per-message classification results
type Observer interface {
	ObserveClassification(predicted string, evidence bool, elapsed time.Duration)
	ObserveError(stage string)
}

// Header is a name/value pair added to a message
type Header struct {
	Name  string
	Value string
}

// Handler implements the milter.Milter interface for message categorization
type Handler struct {
	milter.NoOpMilter
	config     *config.Config
	classifier Classifier
	observer   Observer
	logger     *slog.Logger

	parser *email.Parser

	// Message data being built during the milter session
	subject          string
	contentType      string
	transferEncoding string
	body             bytes.Buffer
	truncated        bool
}

// NewHandler creates a new milter handler
func NewHandler(cfg *config.Config, c Classifier, observer Observer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:     cfg,
		classifier: c,
		observer:   observer,
		logger:     logger,
		parser:     email.NewParser(),
	}
}

// MailFrom starts a new message on the connection
func (h *Handler) MailFrom(from string, esmtpArgs string, m milter.Modifier) (*milter.Response, error) {
	h.reset()
	return milter.RespContinue, nil
}

// Header is called for each header
func (h *Handler) Header(name string, value string, m milter.Modifier) (*milter.Response, error) {
	switch strings.ToLower(name) {
	case "subject":
		h.subject = value
	case "content-type":
		h.contentType = value
	case "content-transfer-encoding":
		h.transferEncoding = value
	}
	return milter.RespContinue, nil
}

// BodyChunk is called for each body chunk
func (h *Handler) BodyChunk(chunk []byte, m milter.Modifier) (*milter.Response, error) {
	limit := h.config.Milter.MaxBodyBytes
	if limit > 0 {
		room := limit - h.body.Len()
		if room <= 0 {
			h.truncated = true
			return milter.RespContinue, nil
		}
		if len(chunk) > room {
			chunk = chunk[:room]
			h.truncated = true
		}
	}
	h.body.Write(chunk)
	return milter.RespContinue, nil
}

// EndOfMessage classifies the message and adds the category headers
func (h *Handler) EndOfMessage(m milter.Modifier) (*milter.Response, error) {
	headers, err := h.Categorize(context.Background())
	defer h.reset()

	if err != nil {
		if h.observer != nil {
			h.observer.ObserveError("milter")
		}
		h.logger.Error("message categorization failed", "error", err)
		if h.config.Milter.TempFailOnError {
			return milter.RespTempFail, nil
		}
		return milter.RespContinue, nil
	}

	for _, hdr := range headers {
		if err := m.AddHeader(hdr.Name, hdr.Value); err != nil {
			return milter.RespTempFail, fmt.Errorf("failed to add category headers: %v", err)
		}
	}

	return milter.RespContinue, nil
}

// Abort is called when the message is aborted
func (h *Handler) Abort(m milter.Modifier) error {
	h.reset()
	return nil
}

// Categorize classifies the subject and body received so far and returns
// the headers describing the result
func (h *Handler) Categorize(ctx context.Context) ([]Header, error) {
	start := time.Now()
	cl := h.config.Classifier

	text := h.messageText()
	res, err := h.classifier.Classify(ctx, features.NGrams(text, cl.GramSize), cl.DefaultCategory)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if h.observer != nil {
		h.observer.ObserveClassification(res.Label, res.Evidence, elapsed)
	}
	h.logger.Debug("message categorized",
		"category", res.Label,
		"score", res.Score,
		"evidence", res.Evidence,
		"truncated", h.truncated)

	prefix := h.config.Milter.HeaderPrefix
	evidence := "yes"
	if !res.Evidence {
		evidence = "none"
	}
	return []Header{
		{Name: prefix + "Category", Value: res.Label},
		{Name: prefix + "Category-Score", Value: fmt.Sprintf("%.6f", res.Score)},
		{Name: prefix + "Category-Info", Value: fmt.Sprintf("zpam-cat; %s; evidence=%s; %.2fms",
			cl.ClassifierType, evidence, float64(elapsed.Microseconds())/1000)},
	}, nil
}

// messageText decodes the MIME body into plain text, falling back to the
// raw bytes when the body cannot be parsed
func (h *Handler) messageText() string {
	body := h.body.String()

	msg, err := h.parser.ParseBody(h.contentType, h.transferEncoding, strings.NewReader(body))
	if err != nil {
		h.logger.Debug("using raw message body", "error", err)
		msg = &email.Message{Body: body}
	}
	msg.Subject = h.subject
	return msg.Text()
}

func (h *Handler) reset() {
	h.subject = ""
	h.contentType = ""
	h.transferEncoding = ""
	h.body.Reset()
	h.truncated = false
}
