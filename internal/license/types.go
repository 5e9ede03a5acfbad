package license

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Persisted state keys
const (
	KeyLicenseKey    = "licenseKey"
	KeyHardwareID    = "hardwareId"
	KeyLicenseStatus = "licenseStatus"
)

// Timestamp is a point in time as exchanged with the license server.
// It decodes RFC 3339 strings, bare dates, Unix milliseconds and null.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses any of the accepted textual forms. Bare dates are
// interpreted as UTC midnight.
func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %s", data)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Ptr returns nil for the zero timestamp
func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// flexString accepts JSON strings and numbers
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*s = flexString(n.String())
	}
	return nil
}

// ServerResponse is the body returned by the activation and validation
// endpoints
type ServerResponse struct {
	Valid          bool            `json:"valid"`
	Expiration     Timestamp       `json:"expiration"`
	ClientID       flexString      `json:"clientId"`
	ClientName     string          `json:"clientName"`
	ActivationDate Timestamp       `json:"activationDate"`
	Message        string          `json:"message,omitempty"`
	Features       map[string]bool `json:"features,omitempty"`

	raw json.RawMessage
}

// Raw returns the response body exactly as received. Responses that were
// built in process are re-encoded.
func (r *ServerResponse) Raw() json.RawMessage {
	if len(r.raw) > 0 {
		return r.raw
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return data
}

// Status is the persisted license status
type Status struct {
	Valid          bool            `json:"valid"`
	Expiration     Timestamp       `json:"expiration"`
	ClientID       string          `json:"clientId"`
	ClientName     string          `json:"clientName"`
	ActivationDate Timestamp       `json:"activationDate"`
	Timestamp      Timestamp       `json:"timestamp"`
	Features       map[string]bool `json:"features,omitempty"`
}

// ActiveAt reports whether the status is valid and unexpired at now.
// A missing expiration counts as expired.
func (s *Status) ActiveAt(now time.Time) bool {
	if s == nil || !s.Valid || s.Expiration.IsZero() {
		return false
	}
	return now.Before(s.Expiration.Time)
}

// ExpiryWarningWindow is how close to its expiration a license is reported
// as expiring soon
const ExpiryWarningWindow = 7 * 24 * time.Hour

// ExpiringWithin reports whether an active status expires within d of now
func (s *Status) ExpiringWithin(now time.Time, d time.Duration) bool {
	return s.ActiveAt(now) && s.Expiration.Sub(now) <= d
}

// State is the lifecycle state of the gate
type State int

const (
	StateUnknown State = iota
	StateActivating
	StateValid
	StateValidating
	StateInvalid
	StateExpired
)

var stateNames = map[State]string{
	StateUnknown:    "UNKNOWN",
	StateActivating: "ACTIVATING",
	StateValid:      "VALID",
	StateValidating: "VALIDATING",
	StateInvalid:    "INVALID",
	StateExpired:    "EXPIRED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NotificationType identifies a notification sent to the license window
type NotificationType string

const (
	NotifyChecking NotificationType = "license-checking"
	NotifyResult   NotificationType = "license-result"
	NotifyError    NotificationType = "license-error"
)

// Notification is pushed to the license window during checks
type Notification struct {
	Type    NotificationType `json:"type"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Message string           `json:"message,omitempty"`
}

// MaskLicenseKey hides everything but the last four characters
func MaskLicenseKey(key string) string {
	runes := []rune(key)
	if len(runes) <= 4 {
		return "****"
	}
	return "****" + string(runes[len(runes)-4:])
}
