package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/sipeed/wabridge/pkg/logger"
)

const (
	HeaderEvent     = "X-Wabridge-Event"
	HeaderDelivery  = "X-Wabridge-Delivery"
	HeaderSignature = "X-Wabridge-Signature"
)

// Options tunes delivery. Zero values fall back to defaults.
type Options struct {
	Workers         int
	QueueSize       int
	MessageTimeout  time.Duration
	DefaultTimeout  time.Duration
	MaxAttempts     int
	RetryPolicy     RetryPolicy
	Secret          []byte
	DeadLetterLimit int
	Client          *resty.Client
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MessageTimeout <= 0 {
		o.MessageTimeout = 10 * time.Second
	}
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.RetryPolicy == nil {
		o.RetryPolicy = ExponentialRetryPolicy{}
	}
	if o.DeadLetterLimit <= 0 {
		o.DeadLetterLimit = 100
	}
	if o.Client == nil {
		o.Client = resty.New()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Delivery is one queued webhook POST.
type Delivery struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	URL       string    `json:"url"`
	Body      []byte    `json:"-"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeadLetter is a delivery that exhausted its attempts.
type DeadLetter struct {
	Delivery
	Payload  json.RawMessage `json:"payload"`
	FailedAt time.Time       `json:"failedAt"`
}

// Dispatcher routes payloads to the URL registered for their category.
// Dispatch never reports failures to its caller; deliveries run on a worker
// pool with bounded retries and end as dead letters when they cannot land.
type Dispatcher struct {
	registry *Registry
	opts     Options
	queue    chan *Delivery

	mu   sync.Mutex
	dead []DeadLetter
}

func NewDispatcher(registry *Registry, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		registry: registry,
		opts:     opts,
		queue:    make(chan *Delivery, opts.QueueSize),
	}
}

// Dispatch queues payload for the category's webhook. It is a no-op when no
// URL is registered.
func (d *Dispatcher) Dispatch(category Category, payload interface{}) {
	url, ok := d.registry.Get(category)
	if !ok {
		logger.DebugCF("webhook", "No webhook URL set, dropping event", map[string]interface{}{
			"category": string(category),
		})
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.ErrorCF("webhook", "Failed to encode webhook payload", map[string]interface{}{
			"category": string(category),
			"error":    err.Error(),
		})
		return
	}

	d.enqueue(&Delivery{
		ID:        uuid.NewString(),
		Category:  category,
		URL:       url,
		Body:      body,
		CreatedAt: d.opts.Now(),
	})
}

func (d *Dispatcher) enqueue(del *Delivery) bool {
	select {
	case d.queue <- del:
		return true
	default:
		logger.WarnCF("webhook", "Delivery queue full, dropping event", map[string]interface{}{
			"category":    string(del.Category),
			"delivery_id": del.ID,
		})
		return false
	}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case del := <-d.queue:
			d.deliver(ctx, del)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, del *Delivery) {
	for {
		del.Attempts++
		err := d.post(ctx, del)
		if err == nil {
			logger.DebugCF("webhook", "Webhook delivered", map[string]interface{}{
				"category":    string(del.Category),
				"delivery_id": del.ID,
				"attempt":     del.Attempts,
			})
			return
		}

		del.LastError = err.Error()
		logger.WarnCF("webhook", "Webhook delivery failed", map[string]interface{}{
			"category":    string(del.Category),
			"delivery_id": del.ID,
			"attempt":     del.Attempts,
			"error":       err.Error(),
		})

		if del.Attempts >= d.opts.MaxAttempts {
			d.deadLetter(del)
			return
		}

		timer := time.NewTimer(d.opts.RetryPolicy.NextDelay(del.Attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			d.deadLetter(del)
			return
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) post(ctx context.Context, del *Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeoutFor(del.Category))
	defer cancel()

	req := d.opts.Client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderEvent, string(del.Category)).
		SetHeader(HeaderDelivery, del.ID).
		SetBody(del.Body)
	if len(d.opts.Secret) > 0 {
		req.SetHeader(HeaderSignature, Sign(d.opts.Secret, del.Body))
	}

	resp, err := req.Post(del.URL)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (d *Dispatcher) timeoutFor(category Category) time.Duration {
	if category == CategoryMessage {
		return d.opts.MessageTimeout
	}
	return d.opts.DefaultTimeout
}

func (d *Dispatcher) deadLetter(del *Delivery) {
	logger.ErrorCF("webhook", "Webhook delivery abandoned", map[string]interface{}{
		"category":    string(del.Category),
		"delivery_id": del.ID,
		"attempts":    del.Attempts,
		"error":       del.LastError,
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dead = append(d.dead, DeadLetter{
		Delivery: *del,
		Payload:  json.RawMessage(del.Body),
		FailedAt: d.opts.Now(),
	})
	if over := len(d.dead) - d.opts.DeadLetterLimit; over > 0 {
		d.dead = append([]DeadLetter(nil), d.dead[over:]...)
	}
}

// DeadLetters returns a copy of the abandoned deliveries, oldest first.
func (d *Dispatcher) DeadLetters() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetter, len(d.dead))
	copy(out, d.dead)
	return out
}

// Replay re-queues every dead letter with a fresh attempt budget and returns
// how many were queued.
func (d *Dispatcher) Replay() int {
	d.mu.Lock()
	dead := d.dead
	d.dead = nil
	d.mu.Unlock()

	queued := 0
	for _, dl := range dead {
		del := dl.Delivery
		del.Attempts = 0
		del.LastError = ""
		if !d.enqueue(&del) {
			d.mu.Lock()
			d.dead = append(d.dead, dl)
			d.mu.Unlock()
			continue
		}
		queued++
	}
	return queued
}

// Test synchronously posts the synthetic test payload to category's URL.
func (d *Dispatcher) Test(ctx context.Context, category Category) error {
	url, ok := d.registry.Get(category)
	if !ok {
		return fmt.Errorf("%w for type: %s", ErrNoWebhook, category)
	}

	body, err := json.Marshal(NewTestMessage(d.opts.Now()))
	if err != nil {
		return err
	}

	return d.post(ctx, &Delivery{
		ID:        uuid.NewString(),
		Category:  category,
		URL:       url,
		Body:      body,
		CreatedAt: d.opts.Now(),
	})
}
