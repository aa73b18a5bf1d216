package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"coachdesk-backend/internal/middleware"
	"coachdesk-backend/internal/stopwatch"
)

// AuthEventsChannel carries sign-in/sign-out events between instances.
const AuthEventsChannel = "auth_events"

// Provider resolves the caller from the verified JWT on the request context
// and fans auth events out to local subscribers. Events published on one
// instance reach every instance through Redis.
type Provider struct {
	mu          sync.RWMutex
	subscribers map[int]func(stopwatch.AuthEvent)
	nextID      int
	redisClient *redis.Client
}

func NewProvider(redisClient *redis.Client) *Provider {
	return &Provider{
		subscribers: make(map[int]func(stopwatch.AuthEvent)),
		redisClient: redisClient,
	}
}

func (p *Provider) CurrentUserID(ctx context.Context) (uuid.UUID, bool) {
	id := middleware.GetUserID(ctx)
	return id, id != uuid.Nil
}

func (p *Provider) Subscribe(fn func(stopwatch.AuthEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
		})
	}
}

// Publish sends evt to all instances. Without Redis it is delivered locally.
func (p *Provider) Publish(ctx context.Context, evt stopwatch.AuthEvent) error {
	if p.redisClient == nil {
		p.dispatch(evt)
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode auth event: %w", err)
	}
	if err := p.redisClient.Publish(ctx, AuthEventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish auth event: %w", err)
	}
	return nil
}

// Listen relays events from Redis to subscribers until ctx is done.
func (p *Provider) Listen(ctx context.Context) error {
	if p.redisClient == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := p.redisClient.Subscribe(ctx, AuthEventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("identity: dropping auth event: %v", err)
				continue
			}
			p.dispatch(evt)
		}
	}
}

func decodeEvent(data []byte) (stopwatch.AuthEvent, error) {
	var evt stopwatch.AuthEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, err
	}
	if evt.UserID == uuid.Nil {
		return evt, fmt.Errorf("missing user id")
	}
	switch evt.Type {
	case stopwatch.AuthSignedIn, stopwatch.AuthSignedOut:
		return evt, nil
	default:
		return evt, fmt.Errorf("unknown event type %q", evt.Type)
	}
}

func (p *Provider) dispatch(evt stopwatch.AuthEvent) {
	p.mu.RLock()
	fns := make([]func(stopwatch.AuthEvent), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}

var _ stopwatch.IdentityProvider = (*Provider)(nil)
