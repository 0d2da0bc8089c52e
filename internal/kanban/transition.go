package kanban

import "github.com/shiftops/kanban/internal/models"

// StatusChange is the payload of a status_change history event.
type StatusChange struct {
	From models.Status `json:"from"`
	To   models.Status `json:"to"`
}

// InitClocks sets the clock fields for a freshly created card. Lead time
// starts at creation whatever the column; the work clock only runs if the
// card is born directly in EM_ANDAMENTO.
func InitClocks(c *models.Card, now int64) {
	c.StartedAt = now
	c.CompletedAt = nil
	c.WorkStartedAt = nil
	c.WorkAccumMs = 0
	c.ReturnsToAfazer = 0
	if c.Status == models.StatusConcluido {
		c.CompletedAt = &now
	}
	if c.Status == models.StatusEmAndamento {
		c.WorkStartedAt = &now
	}
}

// ApplyTransition moves c to status `to` at instant `now`, updating the clock
// fields in place. It returns the (from, to) pair for the history event and
// false when to equals the current status, in which case c is untouched and
// no event must be recorded.
func ApplyTransition(c *models.Card, to models.Status, now int64) (StatusChange, bool) {
	from := c.Status
	if to == from {
		return StatusChange{}, false
	}

	// Leaving EM_ANDAMENTO banks the running interval.
	if from == models.StatusEmAndamento && c.WorkStartedAt != nil {
		c.WorkAccumMs += now - *c.WorkStartedAt
		c.WorkStartedAt = nil
	}

	switch to {
	case models.StatusEmAndamento:
		// Starting (or resuming) work reopens a completed card.
		c.WorkStartedAt = &now
		c.CompletedAt = nil

	case models.StatusConcluido:
		c.CompletedAt = &now

	case models.StatusAFazer:
		// Back to the start column: the item restarts from scratch.
		c.ReturnsToAfazer++
		c.StartedAt = now
		c.CompletedAt = nil
		c.WorkStartedAt = nil
		c.WorkAccumMs = 0

	case models.StatusBloqueado:
		// Work already paused above; lead time keeps running.
	}

	c.Status = to
	return StatusChange{From: from, To: to}, true
}
