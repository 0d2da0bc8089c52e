// Package kanban holds the card lifecycle rules: how a status change starts,
// stops and banks the two per-card clocks, and how elapsed time is derived
// from the stored fields. Everything here is pure; callers pass the instant.
package kanban

import "github.com/shiftops/kanban/internal/models"

// LeadTime returns wall-clock milliseconds from the card's last entry into
// A_FAZER until completion, or until now while the card is still open. It
// keeps growing regardless of status and freezes at CONCLUIDO.
func LeadTime(c *models.Card, now int64) int64 {
	start := c.StartedAt
	if start == 0 {
		start = c.UpdatedAt
	}
	end := now
	if c.CompletedAt != nil {
		end = *c.CompletedAt
	}
	if end < start {
		return 0
	}
	return end - start
}

// WorkTime returns cumulative milliseconds spent in EM_ANDAMENTO: the banked
// total plus the currently running interval, if any.
func WorkTime(c *models.Card, now int64) int64 {
	total := c.WorkAccumMs
	if c.Status == models.StatusEmAndamento && c.WorkStartedAt != nil {
		total += now - *c.WorkStartedAt
	}
	if total < 0 {
		return 0
	}
	return total
}
