package scheduling

import (
	"context"
	"fmt"
	"sort"

	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/directory"
)

// Detector finds existing appointments that overlap a proposed booking on
// either its provider or its room.
type Detector struct {
	store     Store
	directory directory.Directory
}

func NewDetector(store Store, dir directory.Directory) *Detector {
	return &Detector{store: store, directory: dir}
}

// FindConflicts runs the provider and room overlap checks independently and
// unions the results. An appointment clashing on both resources is reported
// once. The proposal's ExcludeID is never reported.
func (d *Detector) FindConflicts(ctx context.Context, orgID string, p Proposal) ([]Conflict, error) {
	if p.Start >= p.End {
		return nil, nil
	}
	byID := make(map[string]*Conflict)
	var order []string

	checks := []struct {
		resource Resource
		id       string
	}{
		{ResourceProvider, p.ProviderID},
		{ResourceRoom, p.RoomID},
	}
	for _, check := range checks {
		if check.id == "" {
			continue
		}
		appts, err := d.store.Overlapping(ctx, orgID, OverlapQuery{
			Resource:   check.resource,
			ResourceID: check.id,
			Date:       p.Date,
			Start:      p.Start,
			End:        p.End,
			ExcludeID:  p.ExcludeID,
		})
		if err != nil {
			return nil, fmt.Errorf("scheduling: %s overlap: %w", check.resource, err)
		}
		for _, appt := range appts {
			if appt.ID == p.ExcludeID {
				continue
			}
			if c, ok := byID[appt.ID]; ok {
				c.Resources = append(c.Resources, check.resource)
				continue
			}
			byID[appt.ID] = &Conflict{
				AppointmentID: appt.ID,
				CustomerID:    appt.CustomerID,
				ProviderID:    appt.ProviderID,
				RoomID:        appt.RoomID,
				Date:          appt.Date,
				Start:         appt.Start,
				End:           appt.End,
				Resources:     []Resource{check.resource},
			}
			order = append(order, appt.ID)
		}
	}
	if len(order) == 0 {
		return nil, nil
	}

	conflicts := make([]Conflict, 0, len(order))
	customerIDs := make([]string, 0, len(order))
	for _, id := range order {
		conflicts = append(conflicts, *byID[id])
		customerIDs = append(customerIDs, byID[id].CustomerID)
	}
	if d.directory != nil {
		contacts, err := d.directory.Contacts(ctx, orgID, directory.KindCustomer, customerIDs...)
		if err != nil {
			return nil, fmt.Errorf("scheduling: conflict customer names: %w", err)
		}
		for i := range conflicts {
			conflicts[i].CustomerName = contacts[conflicts[i].CustomerID].Name
		}
	}
	sort.SliceStable(conflicts, func(i, j int) bool { return conflicts[i].Start < conflicts[j].Start })
	return conflicts, nil
}

func rangeOf(start, end calendar.TimeOfDay) calendar.Range {
	return calendar.Range{Start: start, End: end}
}
