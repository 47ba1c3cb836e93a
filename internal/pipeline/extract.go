package pipeline

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"

	"quickestimate/internal"
	"quickestimate/internal/extract"
)

// source is one part of a message that can yield size rows.
type source struct {
	name        string
	kind        internal.PatchSource
	contentType string
	content     []byte
	image       bool
}

type message struct {
	subject         string
	text            string
	html            string
	attachmentNames []string
	attachments     []source
}

func readMessage(raw []byte) (message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return message{}, err
	}

	msg := message{subject: env.GetHeader("Subject"), text: env.Text, html: env.HTML}
	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for _, att := range parts {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		msg.attachmentNames = append(msg.attachmentNames, filename)

		src := source{name: filename, contentType: att.ContentType, content: att.Content}
		if extract.IsImage(att.ContentType, filename) {
			src.kind, src.image = internal.SourceImage, true
		} else if kind, ok := documentKind(att.ContentType, filename); ok {
			src.kind = kind
		} else {
			continue
		}
		msg.attachments = append(msg.attachments, src)
	}
	return msg, nil
}

// sources lists what to extract from, in order. Attachments win; the HTML
// and text bodies are only read when the message carries no sheet file.
func (m message) sources() []source {
	if len(m.attachments) > 0 {
		return m.attachments
	}
	if strings.Contains(strings.ToLower(m.html), "<table") {
		return []source{{name: "body.html", kind: internal.SourceHTMLTable, contentType: "text/html", content: []byte(m.html)}}
	}
	if strings.TrimSpace(m.text) != "" {
		return []source{{name: "body.txt", kind: internal.SourceText, contentType: "text/plain", content: []byte(m.text)}}
	}
	return nil
}

func documentKind(contentType, filename string) (internal.PatchSource, bool) {
	ex, ok := extract.ForContentType(contentType, filename)
	if !ok {
		return "", false
	}
	switch ex.(type) {
	case extract.XLSXExtractor:
		return internal.SourceXLSX, true
	case extract.PDFExtractor:
		return internal.SourcePDF, true
	case extract.HTMLTableExtractor:
		return internal.SourceHTMLTable, true
	default:
		return internal.SourceText, true
	}
}
