package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lineplan/internal/model"
	"lineplan/internal/orders"
	"lineplan/internal/planner"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema files in name order. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := migrations.ReadFile(n)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
	}
	return nil
}

// ImportOrders replaces the records of a plan date in one transaction.
func (p *Postgres) ImportOrders(ctx context.Context, planDate string, recs []orders.Record) (string, error) {
	importID := fmt.Sprintf("imp_%d", time.Now().UnixNano())
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_records WHERE plan_date=$1`, planDate); err != nil {
		return "", err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO order_records (import_id, plan_date, order_id, job, quantity) VALUES ($1,$2,$3,$4,$5)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, importID, planDate, r.OrderID, r.Job, r.Quantity); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return importID, nil
}

func (p *Postgres) ListOrderRecords(ctx context.Context, planDate string) ([]orders.Record, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT order_id, job, quantity FROM order_records WHERE plan_date=$1 ORDER BY id`, planDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []orders.Record
	for rows.Next() {
		var r orders.Record
		if err := rows.Scan(&r.OrderID, &r.Job, &r.Quantity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// SavePlan upserts the plan body and rewrites its line rows.
func (p *Postgres) SavePlan(ctx context.Context, pl *planner.Plan) error {
	body, err := json.Marshal(pl)
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(ctx, `INSERT INTO plans (id, plan_date, strategy, mode, lines, objective, makespan, fallback, body, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO UPDATE SET strategy=EXCLUDED.strategy, mode=EXCLUDED.mode, objective=EXCLUDED.objective,
            makespan=EXCLUDED.makespan, fallback=EXCLUDED.fallback, body=EXCLUDED.body`,
		pl.ID, nullIfEmpty(pl.PlanDate), pl.Strategy, string(pl.Mode), pl.Lines, pl.Final.Objective, pl.Final.Makespan, pl.Fallback, body, pl.CreatedAt)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_lines WHERE plan_id=$1`, pl.ID); err != nil {
		return err
	}
	for _, t := range pl.Timings {
		if _, err := tx.ExecContext(ctx, `INSERT INTO plan_lines (plan_id, line, seq, job, start_min, end_min) VALUES ($1,$2,$3,$4,$5,$6)`,
			pl.ID, t.Line, t.Seq, t.Job, t.Start, t.End); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) GetPlan(ctx context.Context, id string) (*planner.Plan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM plans WHERE id=$1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var pl planner.Plan
	if err := json.Unmarshal(body, &pl); err != nil {
		return nil, err
	}
	return &pl, nil
}

func (p *Postgres) ListPlans(ctx context.Context, planDate string, limit int) ([]model.PlanSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	const cols = `SELECT id::text, COALESCE(plan_date,''), strategy, mode, lines, objective, makespan, fallback, created_at FROM plans`
	if planDate != "" {
		rows, err = p.db.QueryContext(ctx, cols+` WHERE plan_date=$1 ORDER BY created_at DESC LIMIT $2`, planDate, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, cols+` ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PlanSummary{}
	for rows.Next() {
		var s model.PlanSummary
		if err := rows.Scan(&s.ID, &s.PlanDate, &s.Strategy, &s.Mode, &s.Lines, &s.Objective, &s.Makespan, &s.Fallback, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, id, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, COALESCE(secret,'') FROM subscriptions WHERE events ? $1 OR events ? '*'`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &ev, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`,
			nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	if err != nil {
		return err
	}
	// move to DLQ
	_, err = p.db.ExecContext(ctx, `INSERT INTO webhook_dlq (id, delivery_id, event_type, url, payload, attempts, last_error)
        SELECT gen_random_uuid(), id, event_type, url, payload, attempts, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
	return err
}

func computeDedupKey(payload []byte) string {
	// prefer the event id when the payload carries one
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
