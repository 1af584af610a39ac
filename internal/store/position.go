package store

import "github.com/angiediaz0209/artistline/internal/models"

const (
	defaultAvgServiceMinutes = 5
	defaultWaitBufferSeconds = 120
)

// PositionOf derives the display position and wait estimate for a customer.
// The estimate is a heuristic, not a scheduling guarantee: when the customer
// is not waiting, or the queue has no usable data, Soon is set and the
// numbers are zeroed.
func PositionOf(customer models.Customer, queue models.Queue, bufferSeconds int) models.Position {
	if customer.Status != models.StatusWaiting {
		return models.Position{Soon: true}
	}
	position := customer.Number - queue.CurrentNumber
	if position < 0 {
		position = 0
	}
	if position == 0 {
		return models.Position{Soon: true}
	}
	avg := queue.AvgServiceMinutes
	if avg <= 0 {
		avg = defaultAvgServiceMinutes
	}
	if bufferSeconds < 0 {
		bufferSeconds = defaultWaitBufferSeconds
	}
	return models.Position{
		Position:             position,
		EstimatedWaitSeconds: position*avg*60 + bufferSeconds,
	}
}
