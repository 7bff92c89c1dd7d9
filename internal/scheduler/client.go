package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/ports"
	"followup_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// sendMaxRetry bounds retries of a send task. The worker only asks for a
// retry when nothing reached the gateway, so a lead gets a message at most once.
const sendMaxRetry = 5

// Client enqueues follow-up work. It is the engine's Dispatcher and the
// service's signal enqueuer.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return newClient(opt, cfg.GetAsynqQueueName()), nil
}

func newClient(opt asynq.RedisConnOpt, queue string) *Client {
	if queue == "" {
		queue = "default"
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Dispatch schedules the composed message for delivery at send.SendAt. A
// send that was already queued for the same qualification is not queued twice.
func (c *Client) Dispatch(ctx context.Context, send domain.ScheduledSend, msg ports.Message) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("scheduler client not configured")
	}

	task, err := NewFollowupSendTask(FollowupSendPayload{
		OrganizationID: send.OrganizationID.String(),
		LeadID:         send.LeadID.String(),
		RuleID:         send.RuleID.String(),
		Recipient:      msg.Recipient,
		Body:           msg.Body,
		Source:         msg.Source,
		Style:          string(send.Style),
		Trigger:        string(send.TriggerKind),
		SendAt:         send.SendAt,
		QualifiedAt:    send.QualifiedAt,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(send.SendAt),
		asynq.Queue(c.queue),
		asynq.TaskID(sendTaskID(send)),
		asynq.MaxRetry(sendMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueSignals queues a pass for the organization that carries signals.
func (c *Client) EnqueueSignals(ctx context.Context, organizationID uuid.UUID, signals []domain.EventSignal) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("scheduler client not configured")
	}

	task, err := NewFollowupRunTask(FollowupRunPayload{OrganizationID: organizationID.String(), Signals: signals})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}

// NewRedisClient opens a go-redis client from the same settings, for the
// Redis-backed follow-up tracker.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return redis.NewClient(&redis.Options{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}), nil
}

var _ ports.Dispatcher = (*Client)(nil)
