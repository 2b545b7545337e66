package domain

// Clone returns a copy of the route whose executions can be mutated
// without affecting r. Quote data is shared.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	out := *r
	out.Steps = make([]*Step, len(r.Steps))
	for i, s := range r.Steps {
		out.Steps[i] = s.Clone()
	}
	return &out
}

// Clone returns a copy of the step with a deep-copied execution.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	out := *s
	out.Execution = s.Execution.Clone()
	return &out
}

// Clone returns a deep copy of the execution.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	out := *e
	out.Process = make([]*Process, len(e.Process))
	for i, p := range e.Process {
		cp := *p
		if p.Error != nil {
			perr := *p.Error
			cp.Error = &perr
		}
		out.Process[i] = &cp
	}
	if e.ToToken != nil {
		tok := *e.ToToken
		out.ToToken = &tok
	}
	out.GasCosts = append([]GasCost(nil), e.GasCosts...)
	out.FeeCosts = append([]FeeCost(nil), e.FeeCosts...)
	return &out
}
