package domain

// InteractionSettings gate what an executor may do between invocations.
type InteractionSettings struct {
	// AllowInteraction permits wallet prompts (signing, chain switch, submission).
	AllowInteraction bool `json:"allowInteraction"`
	// AllowUpdates permits propagation of status changes to the hooks.
	AllowUpdates bool `json:"allowUpdates"`
	// AllowExecution permits the route loop to advance to further steps.
	AllowExecution bool `json:"allowExecution"`
}

// DefaultInteractionSettings allows everything.
func DefaultInteractionSettings() InteractionSettings {
	return InteractionSettings{AllowInteraction: true, AllowUpdates: true, AllowExecution: true}
}

// StoppedInteractionSettings disallows everything.
func StoppedInteractionSettings() InteractionSettings {
	return InteractionSettings{}
}
