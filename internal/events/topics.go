package events

// Topic constants for domain events emitted by the kassa.
const (
	TopicReceiptCreated = "receipt.created"
	TopicReceiptDeleted = "receipt.deleted"
	TopicDebtCreated    = "debt.created"
	TopicDebtPaid       = "debt.paid"
	TopicDebtApproved   = "debt.approved"
	TopicDebtRejected   = "debt.rejected"
	TopicStockLow       = "stock.low"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicReceiptCreated,
		TopicReceiptDeleted,
		TopicDebtCreated,
		TopicDebtPaid,
		TopicDebtApproved,
		TopicDebtRejected,
		TopicStockLow,
	}
}
