package config

import "encoding/json"

const redacted = "[REDACTED]"

// SensitiveString holds a secret that must never appear in logs or dumps.
// Every printing and encoding path yields the redacted form; only Value
// exposes the raw secret.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString keeps %#v from printing the raw value.
func (s SensitiveString) GoString() string {
	return `"` + s.String() + `"`
}

// Value returns the underlying secret.
func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s SensitiveString) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s *SensitiveString) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SensitiveString(raw)
	return nil
}
