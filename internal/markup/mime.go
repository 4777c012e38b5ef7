package markup

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"mailorder/internal"
	"mailorder/internal/util"
)

// Envelope is a raw RFC 5322 message reduced to what the pipeline reads.
type Envelope struct {
	Metadata        internal.Metadata
	Body            string
	AttachmentNames []string
}

// Markup renders the envelope as tagged markup.
func (e Envelope) Markup() string {
	return Render(e.Metadata, e.Body)
}

// FromMIME decodes a raw message. The plain-text part is preferred over the
// HTML part; text found in PDF and XLSX attachments is appended to the body.
// Unreadable attachments are skipped.
func FromMIME(raw []byte) (Envelope, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Envelope{}, err
	}

	body := strings.TrimSpace(env.Text)
	if body == "" && env.HTML != "" {
		body = HTMLToText(env.HTML)
	}

	parts := []string{body}
	names := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		names = append(names, filename)
		lower := strings.ToLower(filename)

		var text string
		switch {
		case strings.HasSuffix(lower, ".pdf"):
			text, err = pdfText(att.Content)
		case strings.HasSuffix(lower, ".xlsx"):
			text, err = xlsxText(att.Content)
		default:
			continue
		}
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, text)
	}

	return Envelope{
		Metadata: internal.Metadata{
			Subject: strings.TrimSpace(env.GetHeader("Subject")),
			From:    senderAddress(env),
			To:      strings.TrimSpace(env.GetHeader("To")),
		},
		Body:            strings.TrimSpace(strings.Join(parts, "\n\n")),
		AttachmentNames: names,
	}, nil
}

// senderAddress returns the bare address of the first From entry, falling back
// to the raw header when it does not parse.
func senderAddress(env *enmime.Envelope) string {
	if list, err := env.AddressList("From"); err == nil && len(list) > 0 {
		return list[0].Address
	}
	return strings.TrimSpace(env.GetHeader("From"))
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	lines := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			if line = util.NormalizeSpaces(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// xlsxText renders every non-empty row of every sheet as one line.
func xlsxText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	defer f.Close()

	lines := []string{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = util.NormalizeSpaces(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
