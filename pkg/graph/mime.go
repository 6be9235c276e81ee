package graph

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// ExtractPlainText walks a raw MIME message and returns its first text/plain
// part. Falls back to stripping the first text/html part when no plain part
// exists, which happens with some HTML-only senders.
func ExtractPlainText(raw []byte) (string, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("unable to parse mime message: %v", err)
	}
	defer reader.Close()

	var htmlFallback string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("unable to read mime part: %v", err)
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return "", fmt.Errorf("unable to read mime part body: %v", err)
		}
		switch contentType {
		case "text/plain":
			return strings.TrimSpace(string(body)), nil
		case "text/html":
			if htmlFallback == "" {
				htmlFallback = stripTags(string(body))
			}
		}
	}

	if htmlFallback != "" {
		return htmlFallback, nil
	}
	return "", fmt.Errorf("no readable text part in message")
}

func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
