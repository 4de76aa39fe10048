package models

// Change operations carried by a ChangeNotification.
const (
	OperationInsert = "INSERT"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// ChangeNotification is a row-level change emitted by the store's change log.
// Embedding is nil for deletes.
type ChangeNotification struct {
	Operation string    `json:"operation"`
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Embedding []float32 `json:"embedding"`
}
