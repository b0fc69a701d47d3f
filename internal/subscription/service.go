package subscription

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/ctxlog"
	"github.com/kwetu-labs/whatsdrip/internal/store"
)

const webhookConfigsDoc = "webhook_configs"

var (
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrConfigNotFound  = errors.New("no configuration for list")
)

// ValidationError carries the per-field problems of a rejected
// configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %d problems", len(e.Problems))
}

// Service manages webhook configurations in the durable store.
type Service struct {
	store    store.Store
	locker   store.Locker
	registry *Registry
	now      func() time.Time
}

// NewService creates a webhook configuration service.
func NewService(st store.Store, locker store.Locker, registry *Registry) *Service {
	return &Service{
		store:    st,
		locker:   locker,
		registry: registry,
		now:      time.Now,
	}
}

// Create validates and persists a new webhook configuration under a fresh
// routing token. Configurations that fail their mode's validation are never
// written.
func (s *Service) Create(ctx context.Context, config *WebhookConfig) (*WebhookConfig, error) {
	if config.ListID == "" {
		return nil, &ValidationError{Problems: []string{"list_id is required"}}
	}
	if config.Mode == "" {
		config.Mode = domain.ModeSingle
	}

	handler, err := s.registry.Get(config.Mode)
	if err != nil {
		return nil, err
	}

	if problems := handler.ValidateConfig(config); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	config.Token = token
	config.CreatedAt = now
	config.UpdatedAt = now
	if config.Name == "" {
		config.Name = config.ListName
	}

	if err := s.update(ctx, func(configs map[string]*WebhookConfig) {
		configs[token] = config
	}); err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("webhook configuration created",
		"token", token,
		"list_id", config.ListID,
		"mode", config.Mode,
	)
	return config, nil
}

// GetByToken returns the configuration bound to a routing token.
func (s *Service) GetByToken(ctx context.Context, token string) (*WebhookConfig, error) {
	configs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	config, ok := configs[token]
	if !ok {
		return nil, ErrWebhookNotFound
	}
	return config, nil
}

// GetByList returns the most recently updated configuration for a list.
func (s *Service) GetByList(ctx context.Context, listID string) (*WebhookConfig, error) {
	configs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	var found *WebhookConfig
	for _, config := range configs {
		if config.ListID != listID {
			continue
		}
		if found == nil || config.UpdatedAt.After(found.UpdatedAt) {
			found = config
		}
	}
	if found == nil {
		return nil, ErrConfigNotFound
	}
	return found, nil
}

// List returns all configurations.
func (s *Service) List(ctx context.Context) ([]*WebhookConfig, error) {
	configs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*WebhookConfig, 0, len(configs))
	for _, config := range configs {
		result = append(result, config)
	}
	return result, nil
}

// Delete removes a configuration by token.
func (s *Service) Delete(ctx context.Context, token string) error {
	found := false
	err := s.update(ctx, func(configs map[string]*WebhookConfig) {
		if _, ok := configs[token]; ok {
			delete(configs, token)
			found = true
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrWebhookNotFound
	}

	ctxlog.FromContext(ctx).Info("webhook configuration deleted", "token", token)
	return nil
}

func (s *Service) loadAll(ctx context.Context) (map[string]*WebhookConfig, error) {
	configs := map[string]*WebhookConfig{}
	if err := s.store.Load(ctx, webhookConfigsDoc, &configs); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load webhook configs: %w", err)
	}
	return configs, nil
}

func (s *Service) update(ctx context.Context, mutate func(map[string]*WebhookConfig)) error {
	release, err := s.locker.Acquire(ctx, webhookConfigsDoc)
	if err != nil {
		return fmt.Errorf("acquire config lock: %w", err)
	}
	defer release()

	configs, err := s.loadAll(ctx)
	if err != nil {
		return err
	}

	mutate(configs)

	if err := s.store.Save(ctx, webhookConfigsDoc, configs); err != nil {
		return fmt.Errorf("save webhook configs: %w", err)
	}
	return nil
}

// generateToken returns a 16-character hex routing token.
func generateToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
