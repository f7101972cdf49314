package order

// SyncPlan is the reconciliation between persisted line items and a
// requested item collection. Executing Update, Delete and Insert inside one
// transaction makes the persisted set exactly equal the requested set.
type SyncPlan struct {
	// Insert holds requested items with no persisted counterpart.
	Insert []ItemRequest
	// Update holds requested items whose ID matches a persisted item;
	// persisted fields are overwritten from the request.
	Update []ItemRequest
	// Delete holds ids of persisted items absent from the request.
	Delete []string
}

// Empty reports whether the plan changes nothing.
func (p SyncPlan) Empty() bool {
	return len(p.Insert) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// BuildSyncPlan diffs the persisted line items against the requested
// collection. Items are matched by line-item id: a requested item whose id
// is persisted becomes an update, an unknown or absent id becomes an
// insert, and persisted items missing from the request are deleted.
//
// The requested collection is validated first; a malformed collection
// returns an error and a zero plan.
func BuildSyncPlan(persisted []LineItem, requested []ItemRequest) (SyncPlan, error) {
	if err := ValidateItems(requested); err != nil {
		return SyncPlan{}, err
	}

	existing := make(map[string]struct{}, len(persisted))
	for _, it := range persisted {
		existing[it.ID] = struct{}{}
	}

	var plan SyncPlan
	keep := make(map[string]struct{}, len(requested))
	for _, req := range requested {
		if req.ID != "" {
			if _, ok := existing[req.ID]; ok {
				keep[req.ID] = struct{}{}
				plan.Update = append(plan.Update, req)
				continue
			}
		}
		plan.Insert = append(plan.Insert, req)
	}

	for _, it := range persisted {
		if _, ok := keep[it.ID]; !ok {
			plan.Delete = append(plan.Delete, it.ID)
		}
	}

	return plan, nil
}
