package indexsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/suggest/internal/embedding"
	"github.com/hyperjump/suggest/internal/models"
)

// ErrNotificationDecode is returned for change payloads that cannot be applied.
var ErrNotificationDecode = errors.New("invalid change notification")

type rawNotification struct {
	Operation string    `json:"operation"`
	ID        *int64    `json:"id"`
	Title     string    `json:"title"`
	Embedding []float32 `json:"embedding"`
}

// DecodeNotification parses a change payload. INSERT and UPDATE must carry an embedding of
// dimension dim; DELETE needs only an id.
func DecodeNotification(payload []byte, dim int) (*models.ChangeNotification, error) {
	var raw rawNotification
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotificationDecode, err)
	}
	if raw.ID == nil || *raw.ID <= 0 {
		return nil, fmt.Errorf("%w: missing or invalid id", ErrNotificationDecode)
	}
	n := &models.ChangeNotification{
		Operation: strings.ToUpper(strings.TrimSpace(raw.Operation)),
		ID:        *raw.ID,
		Title:     raw.Title,
	}
	switch n.Operation {
	case models.OperationDelete:
		return n, nil
	case models.OperationInsert, models.OperationUpdate:
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrNotificationDecode, raw.Operation)
	}
	if raw.Embedding == nil {
		return nil, fmt.Errorf("%w: id %d has no embedding", ErrNotificationDecode, n.ID)
	}
	if err := embedding.Validate(raw.Embedding, dim); err != nil {
		return nil, fmt.Errorf("%w: id %d: %v", ErrNotificationDecode, n.ID, err)
	}
	n.Embedding = raw.Embedding
	return n, nil
}
