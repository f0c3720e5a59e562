package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Handler reads the yaml configuration from disk and caches the parsed
// result for the process lifetime.
type Handler struct {
	path string

	conf *Root
}

func NewHandler(path string) *Handler {
	return &Handler{path: path}
}

func (h *Handler) Get() (*Root, error) {
	if h.conf != nil {
		return h.conf, nil
	}

	b, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration file: %w", err)
	}

	conf := &Root{}
	if err := yaml.Unmarshal(b, conf); err != nil {
		return nil, fmt.Errorf("error parsing configuration file: %w", err)
	}

	conf = AddDefaults(conf)

	if err := validate(conf); err != nil {
		return nil, err
	}

	h.conf = conf
	return conf, nil
}

func validate(r *Root) error {
	if r.Telegram == nil || r.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}

	if r.Client.Type != ClientTransmission && r.Client.Type != ClientQBittorrent {
		return fmt.Errorf("unknown client type: %q", r.Client.Type)
	}

	return nil
}
