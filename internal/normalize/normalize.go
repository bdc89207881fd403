package normalize

import (
	"strings"

	"escrowline/internal/domain"
	"escrowline/internal/wire"
)

// Normalize maps one raw ledger record into the canonical Transaction.
// It is pure and total: malformed numerics become zero, malformed
// identities become their stringified raw value, and an unrecognized
// status becomes StatusUnknown. It always builds a fresh value; nothing
// downstream mutates a Transaction in place.
func Normalize(raw map[string]any) domain.Transaction {
	t := domain.Transaction{
		ID:          wire.AsString(raw["id"]),
		Index:       wire.AsInt64(raw["index"]),
		Kind:        kindOf(raw),
		Title:       wire.OptionalString(raw["title"]),
		Status:      wire.Status(raw["status"]),
		From:        wire.ResolvePrincipal(raw["from"]),
		Amount:      wire.AsInt64(raw["amount"]),
		CreatedAt:   wire.AsInt64(raw["created_at"]),
		ConfirmedAt: wire.OptionalInt64(raw["confirmed_at"]),
		CancelledAt: wire.OptionalInt64(raw["cancelled_at"]),
		RefundedAt:  wire.OptionalInt64(raw["refunded_at"]),
		ReleasedAt:  wire.OptionalInt64(raw["released_at"]),
		ReadAt:      wire.OptionalInt64(raw["read_at"]),
	}

	if md, ok := wire.Optional(raw["milestone"]).(map[string]any); ok {
		t.Milestone = normalizeMilestoneData(md)
	}

	switch t.Kind {
	case domain.KindMilestone:
		t.To = flattenMilestoneRecipients(t.Milestone)
	default:
		t.To = basicRecipients(raw)
		// Legacy basic records carry the milestone product title.
		if strings.Contains(t.Title, domain.MilestoneProductLabel) {
			t.Title = domain.BasicProductLabel
		}
	}
	return t
}

// Batch normalizes a page of records and collapses duplicate ids, keeping
// the record with the larger created_at.
func Batch(raws []map[string]any) []domain.Transaction {
	byID := make(map[string]int, len(raws))
	out := make([]domain.Transaction, 0, len(raws))
	for _, raw := range raws {
		t := Normalize(raw)
		if i, seen := byID[t.ID]; seen {
			if t.CreatedAt > out[i].CreatedAt {
				out[i] = t
			}
			continue
		}
		byID[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}

func kindOf(raw map[string]any) domain.Kind {
	switch v := wire.Optional(raw["kind"]).(type) {
	case string:
		if strings.EqualFold(strings.TrimSpace(v), string(domain.KindMilestone)) {
			return domain.KindMilestone
		}
	case map[string]any:
		if len(v) == 1 {
			for tag := range v {
				if strings.EqualFold(strings.TrimSpace(tag), string(domain.KindMilestone)) {
					return domain.KindMilestone
				}
			}
		}
	}
	if _, ok := wire.Optional(raw["milestone"]).(map[string]any); ok {
		if _, tagged := raw["kind"]; !tagged {
			return domain.KindMilestone
		}
	}
	return domain.KindBasic
}

// basicRecipients reads the nested basic payload when present and falls
// back to the top-level field for older records.
func basicRecipients(raw map[string]any) []domain.Recipient {
	if basic, ok := wire.Optional(raw["basic"]).(map[string]any); ok {
		if to, ok := basic["to"].([]any); ok {
			return normalizeRecipients(to)
		}
	}
	if to, ok := raw["to"].([]any); ok {
		return normalizeRecipients(to)
	}
	return nil
}

// flattenMilestoneRecipients collapses per-milestone recipients into one
// display list, first seen wins per identity. This list feeds aggregation
// only; canonical signing state stays on MilestoneData.Recipients.
func flattenMilestoneRecipients(md *domain.MilestoneData) []domain.Recipient {
	if md == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []domain.Recipient
	for _, m := range md.Milestones {
		for _, r := range m.Recipients {
			if seen[r.Principal] {
				continue
			}
			seen[r.Principal] = true
			out = append(out, r)
		}
	}
	return out
}

func normalizeRecipients(vals []any) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(vals))
	for _, v := range vals {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, domain.Recipient{
			Principal:  wire.ResolvePrincipal(m["principal"]),
			Amount:     wire.AsInt64(m["amount"]),
			Percentage: wire.AsFloat64(m["percentage"]),
			Status:     wire.RecipientStatus(m["status"]),
			ApprovedAt: wire.OptionalInt64(m["approved_at"]),
			DeclinedAt: wire.OptionalInt64(m["declined_at"]),
			ReadAt:     wire.OptionalInt64(m["read_at"]),
		})
	}
	return out
}

func normalizeMilestoneData(md map[string]any) *domain.MilestoneData {
	out := &domain.MilestoneData{
		ContractFileID:         wire.OptionalString(md["contract_file_id"]),
		ClientApprovedSignedAt: wire.OptionalInt64(md["client_approved_signed_at"]),
	}
	if ms, ok := md["milestones"].([]any); ok {
		for _, v := range ms {
			if m, ok := v.(map[string]any); ok {
				out.Milestones = append(out.Milestones, normalizeMilestone(m))
			}
		}
	}
	if rs, ok := md["recipients"].([]any); ok {
		for _, v := range rs {
			if m, ok := v.(map[string]any); ok {
				out.Recipients = append(out.Recipients, domain.SigningRecipient{
					Principal:                      wire.ResolvePrincipal(m["principal"]),
					SignedContractAt:               wire.OptionalInt64(m["signed_contract_at"]),
					ClientApprovedSignedContractAt: wire.OptionalInt64(m["client_approved_signed_contract_at"]),
				})
			}
		}
	}
	return out
}

func normalizeMilestone(m map[string]any) domain.Milestone {
	out := domain.Milestone{
		ID:         wire.AsString(m["id"]),
		Allocation: wire.AsInt64(m["allocation"]),
		Duration:   wire.AsInt64(m["duration"]),
		StartDate:  wire.AsInt64(m["start_date"]),
		EndDate:    wire.AsInt64(m["end_date"]),
	}
	if rs, ok := m["recipients"].([]any); ok {
		out.Recipients = normalizeRecipients(rs)
	}
	if ps, ok := m["release_payments"].([]any); ok {
		for i, v := range ps {
			pm, ok := v.(map[string]any)
			if !ok {
				continue
			}
			p := domain.ReleasePayment{
				Index:      int(wire.AsInt64(pm["index"])),
				Amount:     wire.AsInt64(pm["amount"]),
				DueDate:    wire.OptionalInt64(pm["due_date"]),
				ReleasedAt: wire.OptionalInt64(pm["released_at"]),
			}
			if p.Index == 0 {
				p.Index = i + 1
			}
			out.ReleasePayments = append(out.ReleasePayments, p)
		}
	}
	return out
}
