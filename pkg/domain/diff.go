package domain

// RouteDiff represents the changes between two snapshots of a route.
// It is designed to be serialized to JSON for partial updates on the client.
type RouteDiff struct {
	// RouteID is always present to identify the target.
	RouteID string `json:"route_id"`

	// Status changed?
	Status *ExecutionStatus `json:"status,omitempty"`

	// Steps contains only the steps whose execution changed.
	Steps []StepDiff `json:"steps,omitempty"`
}

// StepDiff holds the execution changes of a single step.
type StepDiff struct {
	StepID string           `json:"step_id"`
	Status *ExecutionStatus `json:"status,omitempty"`
	// Processes contains the processes that were added or changed, in list order.
	Processes []ProcessChange `json:"processes,omitempty"`
	// Removed lists process types no longer present.
	Removed []ProcessType `json:"removed,omitempty"`
}

// ProcessChange is the new view of a process that was added or updated.
type ProcessChange struct {
	Type      ProcessType   `json:"type"`
	Status    ProcessStatus `json:"status"`
	Added     bool          `json:"added,omitempty"`
	Message   string        `json:"message,omitempty"`
	TxHash    string        `json:"tx_hash,omitempty"`
	TxLink    string        `json:"tx_link,omitempty"`
	Substatus Substatus     `json:"substatus,omitempty"`
	Error     *ProcessError `json:"error,omitempty"`
}

// Diff calculates the difference between oldRoute and newRoute.
// If oldRoute is nil, it returns a diff representing the entire newRoute (initial load).
func Diff(oldRoute, newRoute *Route) *RouteDiff {
	if newRoute == nil {
		return nil
	}

	diff := &RouteDiff{RouteID: newRoute.ID}

	newStatus := newRoute.Status()
	if oldRoute == nil || oldRoute.Status() != newStatus {
		diff.Status = &newStatus
	}

	for _, step := range newRoute.Steps {
		var oldStep *Step
		if oldRoute != nil {
			oldStep = oldRoute.Step(step.ID)
		}
		if sd := diffStep(oldStep, step); sd != nil {
			diff.Steps = append(diff.Steps, *sd)
		}
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffStep(old, new *Step) *StepDiff {
	if new.Execution == nil {
		return nil
	}
	var oldExec *Execution
	if old != nil {
		oldExec = old.Execution
	}

	sd := &StepDiff{StepID: new.ID}
	if oldExec == nil || oldExec.Status != new.Execution.Status {
		status := new.Execution.Status
		sd.Status = &status
	}

	for _, p := range new.Execution.Process {
		prev := oldExec.FindProcess(p.Type)
		if prev != nil && processEqual(prev, p) {
			continue
		}
		sd.Processes = append(sd.Processes, ProcessChange{
			Type:      p.Type,
			Status:    p.Status,
			Added:     prev == nil,
			Message:   p.Message,
			TxHash:    p.TxHash,
			TxLink:    p.TxLink,
			Substatus: p.Substatus,
			Error:     p.Error,
		})
	}

	if oldExec != nil {
		for _, p := range oldExec.Process {
			if new.Execution.FindProcess(p.Type) == nil {
				sd.Removed = append(sd.Removed, p.Type)
			}
		}
	}

	if sd.Status == nil && len(sd.Processes) == 0 && len(sd.Removed) == 0 {
		return nil
	}
	return sd
}

func processEqual(a, b *Process) bool {
	return a.Status == b.Status &&
		a.Message == b.Message &&
		a.TxHash == b.TxHash &&
		a.TxLink == b.TxLink &&
		a.TaskID == b.TaskID &&
		a.BatchID == b.BatchID &&
		a.Substatus == b.Substatus &&
		a.SubstatusMessage == b.SubstatusMessage &&
		(a.Error == nil) == (b.Error == nil)
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *RouteDiff) IsEmpty() bool {
	return d.Status == nil && len(d.Steps) == 0
}
