package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CredentialsFile is the name of the credentials file inside the data directory.
const CredentialsFile = "credentials.json"

// ErrInvalidCredentials marks a credentials file that is missing or malformed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials holds the portal login and SMTP settings. It is read once at startup.
type Credentials struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	RedirectURI   string `json:"redirect_uri"`
	SMTPServer    string `json:"smtp_server"`
	SMTPPort      Port   `json:"smtp_port"`
	SMTPUsername  string `json:"smtp_username"`
	SMTPPassword  string `json:"smtp_password"`
	SMTPSender    string `json:"smtp_sender"`
	SMTPRecipient string `json:"smtp_recipient"`
	UseAuth       Flag   `json:"use_auth"`
	PO            string `json:"PO"`
}

// LoadCredentials reads credentials.json from dataDir. Every field is required.
func LoadCredentials(dataDir string) (*Credentials, error) {
	path := filepath.Join(dataDir, CredentialsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidCredentials, path, err)
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidCredentials, path, err)
	}
	var missing []string
	for _, field := range requiredCredentialFields {
		raw, ok := present[field]
		if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s is missing %s", ErrInvalidCredentials, path, strings.Join(missing, ", "))
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCredentials, path, err)
	}
	return &creds, nil
}

var requiredCredentialFields = []string{
	"username", "password", "client_id", "client_secret", "redirect_uri",
	"smtp_server", "smtp_port", "smtp_username", "smtp_password",
	"smtp_sender", "smtp_recipient", "use_auth", "PO",
}

// Flag is a boolean that also accepts a JSON boolean or the strings "true"/"false" in any case.
type Flag bool

func (b *Flag) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = Flag(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("use_auth must be a boolean, got %s", data)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		*b = true
	case "false":
		*b = false
	default:
		return fmt.Errorf("use_auth must be true or false, got %q", s)
	}
	return nil
}

// Port is a TCP port that accepts a JSON number or a numeric string.
type Port int

func (p *Port) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Port(n)
		return p.validate()
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("smtp_port must be a number, got %s", data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("smtp_port must be a number, got %q", s)
	}
	*p = Port(n)
	return p.validate()
}

func (p Port) validate() error {
	if p <= 0 || p > 65535 {
		return fmt.Errorf("smtp_port out of range: %d", int(p))
	}
	return nil
}
