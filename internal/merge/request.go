package merge

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Grid geometry for Tabletop Simulator deck sheets.
const (
	GridColumns = 10
	GridRows    = 7
	MaxCards    = GridColumns * GridRows
)

// Card is one normalized input card. Index records the 0-based input
// position and determines the card's grid slot.
type Card struct {
	ID       string
	ImageURI string
	Index    int
}

// HiddenImage is an inline card back decoded from a data URI. It occupies
// the reserved final grid slot and never touches the content store.
type HiddenImage struct {
	Data        []byte
	ContentType string
}

// Grid describes the sheet shape.
type Grid struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// Request is the canonical merge request, normalized from either accepted
// wire shape.
type Request struct {
	Cards       []Card
	Grid        Grid
	SubmittedAt time.Time
	Hidden      *HiddenImage
}

type cardPayload struct {
	ID       string `json:"id"`
	ImageURI string `json:"imageUri"`
}

type objectPayload struct {
	Cards       []cardPayload `json:"cards"`
	HiddenImage string        `json:"hiddenImage"`
}

var hiddenImagePattern = regexp.MustCompile(`(?s)^data:image/(png|jpeg|jpg);base64,(.+)$`)

// ParseRequest validates and normalizes a raw JSON payload. Two shapes are
// accepted: a bare card array (up to 70 cards) and an object with a cards
// list (up to 69) plus an optional hiddenImage data URI. Shape failures
// return *ValidationError with a per-field issue list; no I/O happens here.
func ParseRequest(raw []byte) (*Request, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, &ValidationError{Issues: []Issue{{
			Code: "invalid_type", Message: "request body must be a JSON array or object", Path: "",
		}}}
	}

	switch trimmed[0] {
	case '[':
		var cards []cardPayload
		if err := json.Unmarshal(raw, &cards); err != nil {
			return nil, &ValidationError{Issues: []Issue{{
				Code: "invalid_type", Message: "request body must be an array of card descriptors", Path: "",
			}}}
		}
		return buildRequest(cards, MaxCards, "", nil, nil)
	case '{':
		var payload objectPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &ValidationError{Issues: []Issue{{
				Code: "invalid_type", Message: "request body must be an object with a cards list", Path: "",
			}}}
		}

		var hidden *HiddenImage
		var issues []Issue
		if payload.HiddenImage != "" {
			var issue *Issue
			hidden, issue = parseHiddenImage(payload.HiddenImage)
			if issue != nil {
				issues = append(issues, *issue)
			}
		}
		return buildRequest(payload.Cards, MaxCards-1, "cards", hidden, issues)
	default:
		return nil, &ValidationError{Issues: []Issue{{
			Code: "invalid_type", Message: "request body must be a JSON array or object", Path: "",
		}}}
	}
}

func buildRequest(cards []cardPayload, maxCards int, pathPrefix string, hidden *HiddenImage, issues []Issue) (*Request, error) {
	if len(cards) < 1 {
		issues = append(issues, Issue{
			Code:    "too_small",
			Message: "At least one card image must be provided",
			Path:    pathPrefix,
		})
	}
	if len(cards) > maxCards {
		issues = append(issues, Issue{
			Code:    "too_big",
			Message: fmt.Sprintf("A maximum of %d images are supported for TTS import", maxCards),
			Path:    pathPrefix,
		})
	}

	normalized := make([]Card, 0, len(cards))
	for i, card := range cards {
		if _, err := uuid.Parse(card.ID); err != nil {
			issues = append(issues, Issue{
				Code:    "invalid_string",
				Message: "Each card id must be a valid UUID",
				Path:    cardPath(pathPrefix, i, "id"),
			})
		}
		if !isValidURL(card.ImageURI) {
			issues = append(issues, Issue{
				Code:    "invalid_string",
				Message: "imageUri must be a valid URL",
				Path:    cardPath(pathPrefix, i, "imageUri"),
			})
		}
		normalized = append(normalized, Card{ID: card.ID, ImageURI: card.ImageURI, Index: i})
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	return &Request{
		Cards:       normalized,
		Grid:        Grid{Rows: GridRows, Columns: GridColumns},
		SubmittedAt: time.Now().UTC(),
		Hidden:      hidden,
	}, nil
}

func cardPath(prefix string, index int, field string) string {
	if prefix == "" {
		return fmt.Sprintf("[%d].%s", index, field)
	}
	return fmt.Sprintf("%s[%d].%s", prefix, index, field)
}

func isValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}

// parseHiddenImage decodes a data:image/...;base64 URI. The payload may use
// the standard or URL-safe base64 alphabet, contain embedded whitespace, and
// omit padding.
func parseHiddenImage(raw string) (*HiddenImage, *Issue) {
	match := hiddenImagePattern.FindStringSubmatch(raw)
	if match == nil {
		return nil, &Issue{
			Code:    "invalid_string",
			Message: "hiddenImage must be a base64 data URI with an image/png or image/jpeg payload",
			Path:    "hiddenImage",
		}
	}

	contentType := "image/" + match[1]
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}

	payload := normalizeBase64(match[2])
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return nil, &Issue{
			Code:    "invalid_string",
			Message: "hiddenImage payload is not valid base64",
			Path:    "hiddenImage",
		}
	}

	return &HiddenImage{Data: data, ContentType: contentType}, nil
}

func normalizeBase64(payload string) string {
	var b strings.Builder
	b.Grow(len(payload))
	for _, r := range payload {
		switch r {
		case ' ', '\t', '\r', '\n':
		case '-':
			b.WriteByte('+')
		case '_':
			b.WriteByte('/')
		default:
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if rem := len(normalized) % 4; rem != 0 {
		normalized += strings.Repeat("=", 4-rem)
	}
	return normalized
}
