package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/user/fetch-pipeline/internal/entity"
)

var ErrNoCookies = errors.New("session file has no cookies")

// cookieJSON is the browser export format: expires is seconds since the
// epoch, or -1 for a session cookie.
type cookieJSON struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

type fileJSON struct {
	Identity string       `json:"identity"`
	Cookies  []cookieJSON `json:"cookies"`
}

// FileProvider loads a session exported after a supervised login. The file
// holds either a bare cookie array or {"identity": ..., "cookies": [...]}.
type FileProvider struct {
	path     string
	identity string
}

// NewFileProvider reads path on every Session call. A non-empty identity
// overrides the one stored in the file.
func NewFileProvider(path, identity string) *FileProvider {
	return &FileProvider{path: path, identity: identity}
}

func (p *FileProvider) Session(ctx context.Context) (entity.Session, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return entity.Session{}, fmt.Errorf("read session file: %w", err)
	}
	s, err := Parse(raw)
	if err != nil {
		return entity.Session{}, fmt.Errorf("parse session file %s: %w", p.path, err)
	}
	if p.identity != "" {
		s.Identity = p.identity
	}
	return s, nil
}

// Parse decodes either supported layout.
func Parse(raw []byte) (entity.Session, error) {
	var f fileJSON
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &f.Cookies); err != nil {
			return entity.Session{}, err
		}
	} else if err := json.Unmarshal(trimmed, &f); err != nil {
		return entity.Session{}, err
	}
	if len(f.Cookies) == 0 {
		return entity.Session{}, ErrNoCookies
	}

	s := entity.Session{Identity: f.Identity, Cookies: make([]entity.Cookie, 0, len(f.Cookies))}
	for _, c := range f.Cookies {
		if c.Name == "" {
			continue
		}
		ck := entity.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			ck.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		if ck.Path == "" {
			ck.Path = "/"
		}
		s.Cookies = append(s.Cookies, ck)
	}
	return s, nil
}
