package event_bus

const (
	// OccurrenceSaved is published after an occurrence was created or updated
	// through the occurrence service.
	OccurrenceSaved EventType = "occurrence.saved"
	// OccurrenceTrashed is published after an occurrence was moved to trash.
	OccurrenceTrashed EventType = "occurrence.trashed"
	// ReconcileCompleted is published after a reconciliation run committed.
	ReconcileCompleted EventType = "reconcile.completed"
)
