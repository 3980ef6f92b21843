package messaging

// Subjects follow {domain}.{resource}.{action}.
const (
	// SubjectAttributeChanged carries inbound context attribute changes.
	SubjectAttributeChanged = "context.attributes.changed"

	// SubjectDeliveryFailed carries DeliveryFailed notices from the dispatcher.
	SubjectDeliveryFailed = "cep.delivery.failed"
)

// QueueFeedWorkers is the queue group shared by bridge instances consuming
// the context feed, so each change is evaluated once.
const QueueFeedWorkers = "cepbridge-feed"
