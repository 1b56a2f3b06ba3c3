package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Frame field names on the wire.
const (
	fieldRobotID     = "robot_id"
	fieldElectricity = "electricity"
	fieldActivate    = "activate"
)

// Frame is one telemetry reading decoded from a robot.
type Frame struct {
	RobotID     string `json:"robot_id"`
	Electricity int    `json:"electricity"`
	Active      bool   `json:"activate"`
}

// ParseFrame decodes one read from a robot connection.
//
// The bytes must be UTF-8 text holding a JSON object whose robot_id,
// electricity, and activate fields are all strings. Surrounding whitespace
// is ignored. Extra fields are ignored. A frame that repeats a known field
// or carries a lone UTF-16 surrogate escape in one is rejected as invalid
// JSON.
//
// Returns:
//   - Frame: the decoded reading
//   - error: one of ErrInvalidUTF8, ErrInvalidJSON, ErrMissingField,
//     ErrInvalidElectricity, or ErrInvalidActivate, wrapped with detail
func ParseFrame(data []byte) (Frame, error) {
	if !utf8.Valid(data) {
		return Frame{}, ErrInvalidUTF8
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(data), &fields); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if fields == nil {
		return Frame{}, ErrInvalidJSON
	}
	if err := rejectDuplicateFields(bytes.TrimSpace(data)); err != nil {
		return Frame{}, err
	}

	robotID, err := stringField(fields, fieldRobotID)
	if err != nil {
		return Frame{}, err
	}
	rawElectricity, err := stringField(fields, fieldElectricity)
	if err != nil {
		return Frame{}, err
	}
	rawActivate, err := stringField(fields, fieldActivate)
	if err != nil {
		return Frame{}, err
	}

	electricity, err := strconv.ParseInt(rawElectricity, 10, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %q", ErrInvalidElectricity, rawElectricity)
	}

	active, err := parseActivate(rawActivate)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		RobotID:     robotID,
		Electricity: int(electricity),
		Active:      active,
	}, nil
}

// stringField extracts a required JSON string field.
func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	if hasLoneSurrogate(raw) {
		return "", fmt.Errorf("%w: lone surrogate in %s", ErrInvalidJSON, name)
	}
	return s, nil
}

// rejectDuplicateFields walks the top-level object of an already valid
// frame and fails if robot_id, electricity, or activate appears twice.
// encoding/json keeps the last value silently.
func rejectDuplicateFields(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	seen := make(map[string]bool, 3)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		key, _ := tok.(string)
		switch key {
		case fieldRobotID, fieldElectricity, fieldActivate:
			if seen[key] {
				return fmt.Errorf("%w: duplicate field %s", ErrInvalidJSON, key)
			}
			seen[key] = true
		}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
	}
	return nil
}

// hasLoneSurrogate reports whether a JSON string literal contains a \u
// escape in the surrogate range that is not part of a valid pair.
func hasLoneSurrogate(raw []byte) bool {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			continue
		}
		if raw[i+1] != 'u' {
			i++
			continue
		}
		r, ok := hexEscape(raw, i)
		if !ok {
			return false
		}
		i += 5
		switch {
		case r >= 0xDC00 && r <= 0xDFFF:
			return true
		case r >= 0xD800 && r <= 0xDBFF:
			low, ok := hexEscape(raw, i+1)
			if !ok || low < 0xDC00 || low > 0xDFFF {
				return true
			}
			i += 6
		}
	}
	return false
}

// hexEscape decodes the \uXXXX escape starting at raw[i].
func hexEscape(raw []byte, i int) (rune, bool) {
	if i+6 > len(raw) || raw[i] != '\\' || raw[i+1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(raw[i+2:i+6]), 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// parseActivate maps the activation token to a bool, ignoring case.
func parseActivate(token string) (bool, error) {
	switch strings.ToLower(token) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidActivate, token)
	}
}
