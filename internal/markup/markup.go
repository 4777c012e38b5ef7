// Package markup reads and writes the tagged email markup
// ("@#Subject - ... @#From - ... @#To- ... @#Body- ...") the pipeline consumes.
package markup

import (
	"fmt"
	"regexp"
	"strings"

	"mailorder/internal"
)

const delimiter = "@#"

const (
	TagSubject = "Subject"
	TagFrom    = "From"
	TagTo      = "To"
	TagBody    = "Body"
)

var tagPatterns = map[string]*regexp.Regexp{
	TagSubject: tagPattern(TagSubject),
	TagFrom:    tagPattern(TagFrom),
	TagTo:      tagPattern(TagTo),
	TagBody:    tagPattern(TagBody),
}

// tagPattern matches "@#<tag>", optional blanks, a hyphen, then the value up
// to the next delimiter or the end of input. The tag keyword is case-sensitive.
func tagPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)` + regexp.QuoteMeta(delimiter+tag) + `[ \t]*-(.*?)(?:` + regexp.QuoteMeta(delimiter) + `|\z)`)
}

// Message is the decoded form of one tagged markup payload.
type Message struct {
	Metadata internal.Metadata
	Body     string
	HasBody  bool
	Warnings []string
}

// Field returns the trimmed value of tag, or false when the tag is absent.
func Field(text, tag string) (string, bool) {
	re, ok := tagPatterns[tag]
	if !ok {
		re = tagPattern(tag)
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ExtractMetadata pulls Subject, From and To. Missing tags yield "".
func ExtractMetadata(text string) internal.Metadata {
	subject, _ := Field(text, TagSubject)
	from, _ := Field(text, TagFrom)
	to, _ := Field(text, TagTo)
	return internal.Metadata{Subject: subject, From: from, To: to}
}

// IsolateBody returns the text between the Body marker and the next tag
// marker, across line breaks.
func IsolateBody(text string) (string, bool) {
	return Field(text, TagBody)
}

// Parse decodes metadata and body and records a warning for every missing
// marker. HTML bodies are rendered to plain text.
func Parse(text string) Message {
	msg := Message{Metadata: ExtractMetadata(text)}
	for _, tag := range []string{TagSubject, TagFrom, TagTo} {
		if _, ok := Field(text, tag); !ok {
			msg.Warnings = append(msg.Warnings, fmt.Sprintf("missing %s tag", tag))
		}
	}

	body, ok := IsolateBody(text)
	if !ok {
		msg.Warnings = append(msg.Warnings, "missing Body tag")
		return msg
	}
	if LooksLikeHTML(body) {
		body = HTMLToText(body)
	}
	msg.Body = body
	msg.HasBody = true
	return msg
}

// Render writes metadata and body back into tagged markup. Delimiters inside
// values are broken up so they cannot start a new tag.
func Render(meta internal.Metadata, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s - %s\n", delimiter, TagSubject, escape(meta.Subject))
	fmt.Fprintf(&b, "%s%s - %s\n", delimiter, TagFrom, escape(meta.From))
	fmt.Fprintf(&b, "%s%s- %s\n", delimiter, TagTo, escape(meta.To))
	fmt.Fprintf(&b, "%s%s- %s", delimiter, TagBody, escape(body))
	return b.String()
}

func escape(value string) string {
	return strings.ReplaceAll(value, delimiter, "@ #")
}
