package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/mqttdesk/internal/session"
)

// Field limits.
const (
	maxNameLength = 100
	maxPort       = 65535

	// DefaultKeepAlive is used when a profile leaves KeepAlive unset (seconds).
	DefaultKeepAlive = 60
)

// Profile is a saved set of broker connection settings.
type Profile struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Host      string            `json:"host"`
	Port      int               `json:"port"`
	Username  string            `json:"username,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	KeepAlive int               `json:"keepalive"`
	Will      *session.LastWill `json:"will,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Validate checks the profile and fills defaults.
func (p *Profile) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Host = strings.TrimSpace(p.Host)

	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if len(p.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidProfile, maxNameLength)
	}
	if p.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidProfile)
	}
	if p.Port < 1 || p.Port > maxPort {
		return fmt.Errorf("%w: port %d is outside 1-%d", ErrInvalidProfile, p.Port, maxPort)
	}
	if p.KeepAlive < 0 {
		return fmt.Errorf("%w: keepalive must not be negative", ErrInvalidProfile)
	}
	if p.KeepAlive == 0 {
		p.KeepAlive = DefaultKeepAlive
	}
	if p.Will != nil {
		if _, err := session.NewLastWill(p.Will.Topic, p.Will.Payload, int(p.Will.QoS), p.Will.Retain); err != nil {
			return fmt.Errorf("%w: will: %w", ErrInvalidProfile, err)
		}
	}
	return nil
}

// ConnectParams builds the session connect parameters for this profile.
// The password is supplied by the caller because profiles never store one.
func (p *Profile) ConnectParams(password string) session.ConnectParams {
	return session.ConnectParams{
		Host:     p.Host,
		Port:     strconv.Itoa(p.Port),
		Username: p.Username,
		Password: password,
		Will:     p.Will,
	}
}
