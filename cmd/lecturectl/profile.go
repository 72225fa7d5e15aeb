package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lecturelink/backend/pkg/client"
)

// DefaultServer is used when neither the profile nor --server names one.
const DefaultServer = "http://localhost:8080"

// Profile is the per-user state kept in the profile file. The same file also holds the
// watch view's local flags under "flags"; Save leaves unknown keys alone.
type Profile struct {
	BaseURL      string `yaml:"base_url"`
	Token        string `yaml:"token,omitempty"`
	InstructorID string `yaml:"instructor_id,omitempty"`
	Username     string `yaml:"username,omitempty"`
	VoterID      string `yaml:"voter_id"`

	path string
}

// LoadProfile reads path. A missing file yields an empty profile pointing at DefaultServer.
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		p.BaseURL = DefaultServer
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.BaseURL == "" {
		p.BaseURL = DefaultServer
	}
	return p, nil
}

// Path returns the file the profile was loaded from.
func (p *Profile) Path() string { return p.path }

// Save writes the profile fields back, keeping any other keys in the file.
func (p *Profile) Save() error {
	doc := map[string]interface{}{}
	raw, err := os.ReadFile(p.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read profile: %w", err)
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse profile %s: %w", p.path, err)
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
	}

	set := func(key, value string) {
		if value == "" {
			delete(doc, key)
			return
		}
		doc[key] = value
	}
	set("base_url", p.BaseURL)
	set("token", p.Token)
	set("instructor_id", p.InstructorID)
	set("username", p.Username)
	set("voter_id", p.VoterID)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return os.Rename(tmp, p.path)
}

// Client builds an API client carrying the profile's token and voter id.
func (p *Profile) Client(timeout time.Duration, logger *zap.Logger) (*client.Client, error) {
	opts := []client.Option{
		client.WithVoterID(p.VoterID),
		client.WithHTTPClient(&http.Client{Timeout: timeout}),
		client.WithLogger(logger),
	}
	if p.Token != "" {
		opts = append(opts, client.WithToken(p.Token))
	}
	return client.New(p.BaseURL, opts...)
}

// newVoterID identifies this profile for reactions, so toggles from two terminals do not share a slot.
func newVoterID() string {
	return "cli-" + uuid.NewString()
}
