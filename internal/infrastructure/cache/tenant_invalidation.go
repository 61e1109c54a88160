package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRegistryChannel is the Pub/Sub channel used when none is configured
const DefaultRegistryChannel = "ampairs:tenancy:registry"

// RegistryAction describes what changed in the tenant registry
type RegistryAction string

const (
	ActionProvisioned RegistryAction = "workspace.provisioned"
	ActionRemoved     RegistryAction = "workspace.removed"
	ActionReloadAll   RegistryAction = "registry.reload"
)

// RegistryMessage is published whenever a workspace datasource is added,
// changed or removed
type RegistryMessage struct {
	Action    RegistryAction `json:"action"`
	Tenant    string         `json:"tenant,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Reloader rebuilds the route table; tenant.Provisioner implements it
type Reloader interface {
	Reload(ctx context.Context) error
}

// RegistryInvalidator fans registry changes out to every server instance over
// Redis Pub/Sub. Each instance reacts by reloading its route table. Messages
// arriving while a reload runs are coalesced into one follow-up reload.
type RegistryInvalidator struct {
	client   *redis.Client
	reloader Reloader
	channel  string
	timeout  time.Duration
	logger   *zap.Logger

	pending chan struct{}
	ready   chan struct{}

	mu        sync.Mutex
	isRunning bool
	readyOnce sync.Once
}

// RegistryInvalidatorOption is a functional option for configuring the invalidator
type RegistryInvalidatorOption func(*RegistryInvalidator)

// WithRegistryChannel sets the Pub/Sub channel name
func WithRegistryChannel(channel string) RegistryInvalidatorOption {
	return func(i *RegistryInvalidator) {
		if channel != "" {
			i.channel = channel
		}
	}
}

// WithReloadTimeout bounds each reload
func WithReloadTimeout(d time.Duration) RegistryInvalidatorOption {
	return func(i *RegistryInvalidator) {
		i.timeout = d
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RegistryInvalidatorOption {
	return func(i *RegistryInvalidator) {
		i.logger = logger
	}
}

// NewRegistryInvalidator creates an invalidator on an existing client. The
// caller keeps ownership of the client.
func NewRegistryInvalidator(client *redis.Client, reloader Reloader, opts ...RegistryInvalidatorOption) *RegistryInvalidator {
	i := &RegistryInvalidator{
		client:   client,
		reloader: reloader,
		channel:  DefaultRegistryChannel,
		timeout:  30 * time.Second,
		logger:   zap.NewNop(),
		pending:  make(chan struct{}, 1),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Publish sends a registry change notification to all instances
func (i *RegistryInvalidator) Publish(ctx context.Context, msg RegistryMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish registry message",
			zap.String("channel", i.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}
	i.logger.Debug("Published registry message",
		zap.String("action", string(msg.Action)),
		zap.String("tenant_id", msg.Tenant))
	return nil
}

// PublishProvisioned announces a new or changed workspace datasource
func (i *RegistryInvalidator) PublishProvisioned(ctx context.Context, tenant string) error {
	return i.Publish(ctx, RegistryMessage{Action: ActionProvisioned, Tenant: tenant})
}

// PublishRemoved announces a workspace that must no longer be routed
func (i *RegistryInvalidator) PublishRemoved(ctx context.Context, tenant string) error {
	return i.Publish(ctx, RegistryMessage{Action: ActionRemoved, Tenant: tenant})
}

// RequestReload asks every instance, this one included, to rebuild its route
// table from the registry
func (i *RegistryInvalidator) RequestReload(ctx context.Context) error {
	return i.Publish(ctx, RegistryMessage{Action: ActionReloadAll})
}

// Ready is closed once the subscription is confirmed by Redis
func (i *RegistryInvalidator) Ready() <-chan struct{} {
	return i.ready
}

// Run subscribes to the channel and reloads on every message until ctx is
// cancelled. It blocks; run it in its own goroutine.
func (i *RegistryInvalidator) Run(ctx context.Context) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return errors.New("subscription already running")
	}
	i.isRunning = true
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
	}()

	pubsub := i.client.Subscribe(ctx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.readyOnce.Do(func() { close(i.ready) })
	i.logger.Info("Subscribed to tenant registry channel", zap.String("channel", i.channel))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i.reloadLoop(ctx)
	}()
	defer wg.Wait()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			i.logger.Info("Tenant registry subscription stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Tenant registry channel closed")
				return nil
			}
			var m RegistryMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				i.logger.Error("Failed to unmarshal registry message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			i.logger.Debug("Received registry message",
				zap.String("action", string(m.Action)),
				zap.String("tenant_id", m.Tenant))
			i.schedule()
		}
	}
}

// schedule requests a reload; a reload already pending absorbs the request
func (i *RegistryInvalidator) schedule() {
	select {
	case i.pending <- struct{}{}:
	default:
	}
}

func (i *RegistryInvalidator) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.pending:
			i.reload(ctx)
		}
	}
}

func (i *RegistryInvalidator) reload(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Panic while reloading tenant registry", zap.Any("panic", r))
		}
	}()

	reloadCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	if err := i.reloader.Reload(reloadCtx); err != nil {
		i.logger.Error("Tenant registry reload failed", zap.Error(err))
		return
	}
	i.logger.Info("Tenant registry reloaded")
}
