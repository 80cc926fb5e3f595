package events

import "invitation-app/internal/models"

// Stats counts an event's invitees by status.
type Stats struct {
	Total    int `json:"total"`
	Accepted int `json:"accepted"`
	Declined int `json:"declined"`
	Maybe    int `json:"maybe"`
	Pending  int `json:"pending"`
}

// ComputeStats works on an already loaded event and does no I/O.
func ComputeStats(ev models.Event) Stats {
	s := Stats{Total: len(ev.Invitees)}
	for _, inv := range ev.Invitees {
		switch inv.Status {
		case models.StatusAccepted:
			s.Accepted++
		case models.StatusDeclined:
			s.Declined++
		case models.StatusMaybe:
			s.Maybe++
		case models.StatusPending:
			s.Pending++
		}
	}
	return s
}
