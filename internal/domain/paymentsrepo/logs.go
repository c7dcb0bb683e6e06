package paymentsrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/infra/dbx"
)

type LogsRepository struct{ q dbx.Querier }

func NewLogsRepository(q dbx.Querier) *LogsRepository {
	return &LogsRepository{q: q}
}

func (r *LogsRepository) InsertPaymentLog(ctx context.Context, orderID int64, logType string, payload any) error {
	var jb []byte
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			jb = b
		}
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO payment_logs (order_id, log_type, payload)
		VALUES ($1, $2, $3)
	`, orderID, logType, jb)
	if err != nil {
		return fmt.Errorf("insert payment_log: %w", err)
	}
	return nil
}

func (r *LogsRepository) ListForOrder(ctx context.Context, orderID int64) ([]PaymentLog, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, log_type, payload, created_at
		FROM payment_logs
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment_logs: %w", err)
	}
	defer rows.Close()

	var out []PaymentLog
	for rows.Next() {
		var l PaymentLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.LogType, &l.Payload, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment_log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
