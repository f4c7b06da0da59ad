package core

// Auditor is the external audit-log collaborator. The core invokes it
// fire-and-forget after every successful or failed mutation; it is a
// side channel and never substitutes for returning the error.
type Auditor interface {
	Record(principal, message string)
}

// NopAuditor discards audit records. Use in tests.
type NopAuditor struct{}

func (NopAuditor) Record(string, string) {}
