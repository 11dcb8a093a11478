package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/atef1995/sayarat-sub000/internal/config"
	"github.com/atef1995/sayarat-sub000/internal/pipeline"
	"github.com/atef1995/sayarat-sub000/internal/session"
)

// TaskType defines the type of a background task.
const (
	TypeSessionSweep  = "submission:session:sweep"
	TypePaymentExpire = "submission:payment:expire"
)

// sweepInterval is how often the session sweep re-enqueues itself.
const sweepInterval = 10 * time.Minute

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	opts := rdb.Options()
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// PaymentExpirePayload identifies the payment handle to expire. The reference
// is matched against the session's current handle so a replacement handle
// issued in the meantime is left alone.
type PaymentExpirePayload struct {
	SessionID string `json:"session_id"`
	AccountID string `json:"account_id"`
	Reference string `json:"reference"`
}

// EnqueuePaymentExpiry schedules cancellation of an unconfirmed payment
// handle after the configured TTL.
func EnqueuePaymentExpiry(ctx context.Context, client *asynq.Client, ttl time.Duration, sessionID, accountID, reference string) error {
	payload, err := json.Marshal(PaymentExpirePayload{SessionID: sessionID, AccountID: accountID, Reference: reference})
	if err != nil {
		return fmt.Errorf("failed to marshal payment expiry payload: %w", err)
	}
	task := asynq.NewTask(TypePaymentExpire, payload)
	if _, err := client.EnqueueContext(ctx, task, asynq.ProcessIn(ttl)); err != nil {
		return fmt.Errorf("failed to enqueue payment expiry task: %w", err)
	}
	return nil
}

// EnqueueSessionSweep schedules the first session sweep; afterwards the sweep
// re-enqueues itself.
func EnqueueSessionSweep(ctx context.Context, client *asynq.Client) error {
	task := asynq.NewTask(TypeSessionSweep, nil)
	if _, err := client.EnqueueContext(ctx, task, asynq.ProcessIn(sweepInterval)); err != nil {
		return fmt.Errorf("failed to enqueue session sweep task: %w", err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg        *config.Config
	manager    *session.Manager
	taskClient *asynq.Client
}

func NewTaskProcessor(cfg *config.Config, manager *session.Manager, taskClient *asynq.Client) *TaskProcessor {
	return &TaskProcessor{
		cfg:        cfg,
		manager:    manager,
		taskClient: taskClient,
	}
}

// SetupServer configures and runs an Asynq server instance. Returns nil in
// API-only mode.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isBgWorker bool) *asynq.Server {
	opts := rdb.Options()
	serverOpt := asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	if !isBgWorker {
		log.Println("Running in API mode, no task server started.")
		return nil
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSessionSweep, processor.HandleSessionSweepTask)
	mux.HandleFunc(TypePaymentExpire, processor.HandlePaymentExpireTask)
	log.Println("Registered submission background task handlers.")

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Could not run Asynq server: %v", err)
		}
	}()

	return srv
}

// --- Task Handlers ---

// HandleSessionSweepTask drops sessions idle beyond the configured TTL, then
// re-enqueues itself.
func (p *TaskProcessor) HandleSessionSweepTask(ctx context.Context, t *asynq.Task) error {
	removed := p.manager.Sweep(p.cfg.SessionTTL)
	if removed > 0 {
		log.Printf("Session sweep removed %d idle sessions (%d live).", removed, p.manager.Len())
	}

	if _, err := p.taskClient.EnqueueContext(ctx, t, asynq.ProcessIn(sweepInterval)); err != nil {
		log.Printf("ERROR failed to re-enqueue session sweep task: %v", err)
		return err
	}
	return nil
}

// HandlePaymentExpireTask cancels a payment handle that was never confirmed
// within its TTL, failing the attempt as retryable so the user can start over.
func (p *TaskProcessor) HandlePaymentExpireTask(ctx context.Context, t *asynq.Task) error {
	var payload PaymentExpirePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payment expiry payload: %v: %w", err, asynq.SkipRetry)
	}

	sess, err := p.manager.Get(ctx, payload.SessionID, payload.AccountID)
	if errors.Is(err, session.ErrNotFound) {
		// Session already concluded or swept; nothing to expire.
		return nil
	}
	if err != nil {
		return err
	}

	st := sess.Pipeline.Status()
	if st.State != pipeline.StateAwaitingPayment || st.Payment == nil || st.Payment.Reference != payload.Reference {
		return nil
	}

	log.Printf("Expiring unconfirmed payment %s for session %s", payload.Reference, payload.SessionID)
	if _, err := sess.Pipeline.CancelPayment(); err != nil {
		log.Printf("WARN: failed to expire payment for session %s: %v", payload.SessionID, err)
		return nil
	}
	p.manager.Persist(ctx, sess)
	return nil
}
