package recurrence

// ApplyOverride merges an override component into a table already holding
// its master's expansion.
//
// The override replaces the instance at its RECURRENCE-ID. With
// RANGE=THISANDFUTURE every later instance that is not itself an override
// is moved by the offset between the RECURRENCE-ID and the override's
// start, and given the override's duration. The offset is always applied
// to the instance's nominal RecurrenceID, so overlapping THISANDFUTURE
// overrides never compound and applying the same override twice is a
// no-op. Overrides without DTSTART or RECURRENCE-ID are ignored.
func (e *Engine) ApplyOverride(table *InstanceTable, override *Component) {
	own, _, ok := override.Interval()
	if !ok {
		e.logger.Debug("skipping override without DTSTART", "uid", override.UID())
		return
	}
	rid, ok := override.RecurrenceID().Get()
	if !ok {
		e.logger.Debug("skipping override without RECURRENCE-ID", "uid", override.UID())
		return
	}

	table.Put(Instance{
		Source:       override,
		RecurrenceID: rid,
		Start:        own.Start,
		End:          own.End,
		Overridden:   true,
	})

	if !override.ThisAndFuture() {
		return
	}

	shift := Between(rid, own.Start)
	newDuration := Between(own.Start, own.End)

	var later []Instance
	table.AscendAfter(rid, func(inst Instance) bool {
		if !inst.Overridden {
			later = append(later, inst)
		}
		return true
	})
	for _, inst := range later {
		inst.Start = shift.Apply(inst.RecurrenceID)
		inst.End = newDuration.Apply(inst.Start)
		inst.Shifted = true
		inst.Overridden = false
		table.Put(inst)
	}
}
