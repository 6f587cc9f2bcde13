// Package rtc mints short-lived join credentials for real-time channels.
//
// Credentials are HS256 JWTs carrying a video grant in the shape LiveKit
// servers accept: the app id is the issuer, the participant id the subject.
package rtc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the permission level granted in a channel.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RolePublisher || r == RoleSubscriber
}

// RoleFor picks publisher for the channel owner and subscriber for everyone else.
func RoleFor(ownerID, callerID uint) Role {
	if ownerID == callerID {
		return RolePublisher
	}
	return RoleSubscriber
}

// MaxParticipantID bounds the randomly chosen participant id (inclusive).
const MaxParticipantID = 9999

// ErrConfigUnavailable is returned when the app id or secret is not configured.
var ErrConfigUnavailable = errors.New("rtc: app credentials are not configured")

// VideoGrant is the permission block embedded in a credential.
type VideoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

// Claims is the JWT body of a credential.
type Claims struct {
	jwt.RegisteredClaims
	Video VideoGrant `json:"video"`
	Role  Role       `json:"role"`
}

// Issue signs a credential for channel valid for ttlSeconds from now.
// The output depends only on its arguments.
func Issue(appID, appSecret, channel string, participantID int, role Role, ttlSeconds int64, now time.Time) (string, error) {
	if appID == "" || appSecret == "" {
		return "", ErrConfigUnavailable
	}
	if channel == "" {
		return "", errors.New("rtc: channel is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("rtc: unknown role %q", role)
	}
	if ttlSeconds <= 0 {
		return "", fmt.Errorf("rtc: ttl must be positive, got %d", ttlSeconds)
	}

	now = now.Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    appID,
			Subject:   strconv.Itoa(participantID),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
		},
		Video: VideoGrant{
			Room:           channel,
			RoomJoin:       true,
			CanPublish:     role == RolePublisher,
			CanSubscribe:   true,
			CanPublishData: role == RolePublisher,
		},
		Role: role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(appSecret))
	if err != nil {
		return "", fmt.Errorf("rtc: sign credential: %w", err)
	}
	return token, nil
}

// Parse verifies token against appSecret and returns its claims.
func Parse(token, appSecret string, opts ...jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}
	opts = append([]jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}, opts...)
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(appSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// KeyID is a public fingerprint of appSecret that clients may use to tell
// signing keys apart. It never reveals the secret.
func KeyID(appSecret string) string {
	if appSecret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(appSecret))
	return hex.EncodeToString(sum[:8])
}

// AppCredentials are the app id and secret plus the validity window.
type AppCredentials struct {
	AppID      string
	AppSecret  string
	TTLSeconds int64
}

// Credential is an issued join credential plus what a client needs to use it.
type Credential struct {
	AppID         string    `json:"app_id"`
	Channel       string    `json:"channel"`
	Token         string    `json:"token"`
	ParticipantID int       `json:"participant_id"`
	Role          Role      `json:"role"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Issuer adds a clock and participant id selection on top of Issue.
type Issuer struct {
	now         func() time.Time
	participant func() int
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithClock fixes the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// WithParticipantSource fixes how participant ids are chosen.
func WithParticipantSource(next func() int) IssuerOption {
	return func(i *Issuer) { i.participant = next }
}

func NewIssuer(opts ...IssuerOption) *Issuer {
	i := &Issuer{
		now:         time.Now,
		participant: func() int { return rand.IntN(MaxParticipantID + 1) },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue mints a credential for channel with a fresh participant id.
func (i *Issuer) Issue(app AppCredentials, channel string, role Role) (Credential, error) {
	now := i.now()
	pid := i.participant()
	token, err := Issue(app.AppID, app.AppSecret, channel, pid, role, app.TTLSeconds, now)
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		AppID:         app.AppID,
		Channel:       channel,
		Token:         token,
		ParticipantID: pid,
		Role:          role,
		ExpiresAt:     now.Truncate(time.Second).Add(time.Duration(app.TTLSeconds) * time.Second).UTC(),
	}, nil
}
