package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseICEServersJSON parses the ice_servers setting handed to joining clients.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var servers []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, server := range servers {
		urls := make([]string, 0, len(server.URLs))
		for _, url := range server.URLs {
			if url = strings.TrimSpace(url); url != "" {
				urls = append(urls, url)
			}
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("server %d: urls must not be empty", i)
		}
		for _, url := range urls {
			if !strings.HasPrefix(url, "stun:") && !strings.HasPrefix(url, "stuns:") &&
				!strings.HasPrefix(url, "turn:") && !strings.HasPrefix(url, "turns:") {
				return nil, fmt.Errorf("server %d: unsupported url scheme %q", i, url)
			}
		}

		s := webrtc.ICEServer{
			URLs:     urls,
			Username: strings.TrimSpace(server.Username),
		}
		if server.Credential != "" {
			s.Credential = server.Credential
			s.CredentialType = webrtc.ICECredentialTypePassword
		}
		if isTURN(urls) && (s.Username == "" || server.Credential == "") {
			return nil, errors.New("turn servers require username and credential")
		}
		out = append(out, s)
	}
	return out, nil
}

func isTURN(urls []string) bool {
	for _, u := range urls {
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}
