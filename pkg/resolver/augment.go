package resolver

// augment is a specification in the process of being fulfilled: the provider
// and component currently assigned to it, and whether its checks passed
// against the current assignment.
type augment struct {
	spec      *Specification
	provider  string
	component string
	valid     bool
}

// cloneAugments copies the augment set so a failed search leaves the
// session's accepted set untouched.
func cloneAugments(augments []*augment) []*augment {
	cloned := make([]*augment, len(augments))
	for i, a := range augments {
		cloned[i] = &augment{
			spec:      a.spec,
			provider:  a.provider,
			component: a.component,
			valid:     a.valid,
		}
	}
	return cloned
}

// Assignment reports one resolved specification for inspection and logging.
type Assignment struct {
	Spec      string
	Provider  string
	Component string
}
