package domain

import "fmt"

// Validate checks the structural invariants a well-formed record must hold.
// Violations indicate backend data corruption, not caller misuse; the
// normalizer never fails on them, so callers decide whether to log or abort.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction missing id")
	}
	if t.Milestone == nil {
		return nil
	}
	for _, m := range t.Milestone.Milestones {
		if err := m.validateReleasePrefix(); err != nil {
			return fmt.Errorf("milestone %s: %w", m.ID, err)
		}
	}
	for _, r := range t.Milestone.Recipients {
		if r.ClientApprovedSignedContractAt != nil && r.SignedContractAt == nil {
			return fmt.Errorf("signing recipient %s approved before signing", r.Principal)
		}
	}
	return nil
}

// validateReleasePrefix asserts that released payments form a gap-free
// prefix of the 1-indexed payment sequence.
func (m Milestone) validateReleasePrefix() error {
	seenUnreleased := false
	for i, p := range m.ReleasePayments {
		if p.Index != 0 && p.Index != i+1 {
			return fmt.Errorf("release payment %d carries index %d", i+1, p.Index)
		}
		if p.ReleasedAt == nil {
			seenUnreleased = true
			continue
		}
		if seenUnreleased {
			return fmt.Errorf("release payment %d released after an unreleased one", i+1)
		}
	}
	return nil
}
