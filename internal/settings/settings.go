// Package settings serves the admin-configured limits from a process-wide cache.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fanlive/internal/config"
	"fanlive/internal/models"
	"fanlive/internal/rtc"

	"gorm.io/gorm"
)

// Default limits used until an admin row exists.
const (
	DefaultMaxReschedules          = 3
	DefaultRescheduleBufferMinutes = 60
	DefaultMinTipAmount            = 1
	DefaultMaxTipAmount            = 10000
	DefaultCredentialTTLSeconds    = 3600
	DefaultRescheduleExemptGroup   = "reschedule_exempt"
	DefaultNotifyRestrictedGroup   = "notify_restricted"
)

// Source reads the current admin settings.
type Source interface {
	Get(ctx context.Context) (models.AdminSettings, error)
}

// Defaults returns the built-in settings with RTC keys taken from cfg.
func Defaults(cfg *config.Config) models.AdminSettings {
	s := models.AdminSettings{
		MaxReschedules:          DefaultMaxReschedules,
		RescheduleBufferMinutes: DefaultRescheduleBufferMinutes,
		MinTipAmount:            DefaultMinTipAmount,
		MaxTipAmount:            DefaultMaxTipAmount,
		CredentialTTLSeconds:    DefaultCredentialTTLSeconds,
		RescheduleExemptGroup:   DefaultRescheduleExemptGroup,
		NotifyRestrictedGroup:   DefaultNotifyRestrictedGroup,
	}
	if cfg != nil {
		s.RTCAppID = cfg.RTCAppID
		s.RTCAppSecret = cfg.RTCAppSecret
	}
	return s
}

// Provider caches the admin_settings row for a fixed TTL.
type Provider struct {
	db       *gorm.DB
	defaults models.AdminSettings
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	cached    models.AdminSettings
	fetchedAt time.Time
	loaded    bool
}

func NewProvider(db *gorm.DB, defaults models.AdminSettings, ttl time.Duration) *Provider {
	return &Provider{db: db, defaults: defaults, ttl: ttl, now: time.Now}
}

// SetClock replaces the time source.
func (p *Provider) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// Get returns the cached settings, reloading them once the TTL has passed.
func (p *Provider) Get(ctx context.Context) (models.AdminSettings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded && p.ttl > 0 && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.cached, nil
	}

	s, err := p.load(ctx)
	if err != nil {
		return models.AdminSettings{}, err
	}
	p.cached = s
	p.fetchedAt = p.now()
	p.loaded = true
	return s, nil
}

// Invalidate forces the next Get to reload.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()
}

func (p *Provider) load(ctx context.Context) (models.AdminSettings, error) {
	var row models.AdminSettings
	err := p.db.WithContext(ctx).Order("id ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p.defaults, nil
	}
	if err != nil {
		return models.AdminSettings{}, fmt.Errorf("load admin settings: %w", err)
	}
	if row.RTCAppID == "" {
		row.RTCAppID = p.defaults.RTCAppID
	}
	if row.RTCAppSecret == "" {
		row.RTCAppSecret = p.defaults.RTCAppSecret
	}
	if row.CredentialTTLSeconds <= 0 {
		row.CredentialTTLSeconds = p.defaults.CredentialTTLSeconds
	}
	return row, nil
}

// Save upserts the single settings row and drops the cache.
func (p *Provider) Save(ctx context.Context, s models.AdminSettings) (models.AdminSettings, error) {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.AdminSettings
		err := tx.Order("id ASC").First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.ID = 0
			return tx.Create(&s).Error
		case err != nil:
			return err
		}
		s.ID = existing.ID
		return tx.Save(&s).Error
	})
	if err != nil {
		return models.AdminSettings{}, fmt.Errorf("save admin settings: %w", err)
	}
	p.Invalidate()
	return s, nil
}

// EnsureRow inserts the defaults when no settings row exists yet.
func (p *Provider) EnsureRow(ctx context.Context) error {
	var count int64
	if err := p.db.WithContext(ctx).Model(&models.AdminSettings{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count admin settings: %w", err)
	}
	if count > 0 {
		return nil
	}
	row := p.defaults
	row.ID = 0
	// Config-provided RTC keys stay in config.
	row.RTCAppID, row.RTCAppSecret = "", ""
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("seed admin settings: %w", err)
	}
	p.Invalidate()
	return nil
}

// AppCredentials extracts the credential issuer inputs from s.
func AppCredentials(s models.AdminSettings) rtc.AppCredentials {
	return rtc.AppCredentials{
		AppID:      s.RTCAppID,
		AppSecret:  s.RTCAppSecret,
		TTLSeconds: int64(s.CredentialTTLSeconds),
	}
}

// Static is a fixed Source.
type Static models.AdminSettings

func (s Static) Get(context.Context) (models.AdminSettings, error) {
	return models.AdminSettings(s), nil
}
