package normalize

import (
	"encoding/json"
	"reflect"
	"testing"

	"escrowline/internal/domain"
	"escrowline/internal/wire"
)

func basicRaw() map[string]any {
	return map[string]any{
		"id":         "tx-1",
		"index":      float64(7),
		"kind":       map[string]any{"Basic": nil},
		"title":      []any{"My first escrow"},
		"status":     map[string]any{"Pending": nil},
		"from":       "sender-principal",
		"amount":     "250000000",
		"created_at": "1700000000000000000",
		"basic": []any{map[string]any{
			"to": []any{
				map[string]any{
					"principal":  "alice",
					"amount":     "150000000",
					"percentage": float64(60),
					"status":     map[string]any{"Pending": nil},
				},
				map[string]any{
					"principal":   "bob",
					"amount":      "100000000",
					"percentage":  float64(40),
					"status":      map[string]any{"Approved": nil},
					"approved_at": []any{"1700000001000000000"},
				},
			},
		}},
	}
}

func milestoneRaw() map[string]any {
	return map[string]any{
		"id":         "tx-2",
		"index":      float64(8),
		"kind":       map[string]any{"Milestone": nil},
		"title":      []any{"Milestone Escrow for site build"},
		"status":     map[string]any{"Confirmed": nil},
		"from":       "sender-principal",
		"amount":     "500000000",
		"created_at": "1700000000000000000",
		"milestone": []any{map[string]any{
			"milestones": []any{
				map[string]any{
					"id":         "m-1",
					"allocation": "500000000",
					"duration":   "86400",
					"start_date": "1700000000000000000",
					"end_date":   "1700086400000000000",
					"recipients": []any{
						map[string]any{
							"principal":  "carol",
							"amount":     "500000000",
							"percentage": float64(100),
							"status":     map[string]any{"Pending": nil},
						},
					},
					"release_payments": []any{
						map[string]any{"amount": "250000000"},
						map[string]any{"amount": "250000000"},
					},
				},
			},
			"recipients": []any{
				map[string]any{
					"principal":          "carol",
					"signed_contract_at": []any{"1700000002000000000"},
				},
			},
			"contract_file_id": []any{"file-9"},
		}},
	}
}

func TestNormalizeBasic(t *testing.T) {
	tx := Normalize(basicRaw())
	if tx.ID != "tx-1" || tx.Index != 7 {
		t.Fatalf("identity fields: %+v", tx)
	}
	if tx.Kind != domain.KindBasic {
		t.Fatalf("kind = %q, want basic", tx.Kind)
	}
	if tx.Status != domain.StatusPending {
		t.Fatalf("status = %q, want pending", tx.Status)
	}
	if tx.Amount != 250000000 || tx.CreatedAt != 1700000000000000000 {
		t.Fatalf("numeric fields: amount=%d created=%d", tx.Amount, tx.CreatedAt)
	}
	if len(tx.To) != 2 {
		t.Fatalf("recipients = %d, want 2", len(tx.To))
	}
	if tx.To[1].Status != domain.RecipientApproved || tx.To[1].ApprovedAt == nil {
		t.Fatalf("second recipient not approved: %+v", tx.To[1])
	}
	if tx.Milestone != nil {
		t.Fatal("basic escrow should carry no milestone data")
	}
}

func TestNormalizeMilestone(t *testing.T) {
	tx := Normalize(milestoneRaw())
	if tx.Kind != domain.KindMilestone {
		t.Fatalf("kind = %q, want milestone", tx.Kind)
	}
	if tx.Milestone == nil || len(tx.Milestone.Milestones) != 1 {
		t.Fatalf("milestone data: %+v", tx.Milestone)
	}
	m := tx.Milestone.Milestones[0]
	if len(m.ReleasePayments) != 2 {
		t.Fatalf("payments = %d, want 2", len(m.ReleasePayments))
	}
	// Missing indices default to position.
	if m.ReleasePayments[0].Index != 1 || m.ReleasePayments[1].Index != 2 {
		t.Fatalf("payment indices: %+v", m.ReleasePayments)
	}
	if len(tx.Milestone.Recipients) != 1 || tx.Milestone.Recipients[0].SignedContractAt == nil {
		t.Fatalf("signing recipients: %+v", tx.Milestone.Recipients)
	}
	if tx.Milestone.ContractFileID != "file-9" {
		t.Fatalf("contract file = %q", tx.Milestone.ContractFileID)
	}
	if len(tx.To) != 1 || tx.To[0].Principal != "carol" {
		t.Fatalf("flattened recipients: %+v", tx.To)
	}
}

func TestNormalizeTitleOverride(t *testing.T) {
	raw := basicRaw()
	raw["title"] = []any{domain.MilestoneProductLabel}
	tx := Normalize(raw)
	if tx.Title != domain.BasicProductLabel {
		t.Fatalf("title = %q, want %q", tx.Title, domain.BasicProductLabel)
	}

	// A milestone escrow keeps its title.
	tx = Normalize(milestoneRaw())
	if tx.Title != "Milestone Escrow for site build" {
		t.Fatalf("milestone title rewritten: %q", tx.Title)
	}
}

func TestNormalizeTopLevelToFallback(t *testing.T) {
	raw := basicRaw()
	delete(raw, "basic")
	raw["to"] = []any{
		map[string]any{"principal": "dave", "amount": "250000000", "percentage": float64(100)},
	}
	tx := Normalize(raw)
	if len(tx.To) != 1 || tx.To[0].Principal != "dave" {
		t.Fatalf("fallback recipients: %+v", tx.To)
	}
	if tx.To[0].Status != domain.RecipientPending {
		t.Fatalf("missing status should default to pending, got %q", tx.To[0].Status)
	}
}

func TestNormalizeIdentityBytesForm(t *testing.T) {
	raw := basicRaw()
	bytes := []any{float64(1), float64(2), float64(3)}
	raw["from"] = map[string]any{"_arr": bytes}
	tx := Normalize(raw)
	want := wire.PrincipalText([]byte{1, 2, 3})
	if tx.From != want {
		t.Fatalf("from = %q, want %q", tx.From, want)
	}
}

func TestNormalizeMalformedFieldsAreZero(t *testing.T) {
	tx := Normalize(map[string]any{
		"id":     "tx-3",
		"amount": "not a number",
		"status": map[string]any{"Exploded": nil},
	})
	if tx.Amount != 0 {
		t.Fatalf("amount = %d, want 0", tx.Amount)
	}
	if tx.Status != domain.StatusUnknown {
		t.Fatalf("status = %q, want unknown", tx.Status)
	}
	if tx.Kind != domain.KindBasic {
		t.Fatalf("kind = %q, want basic", tx.Kind)
	}
}

func TestBatchDeduplicatesKeepingNewest(t *testing.T) {
	older := basicRaw()
	newer := basicRaw()
	newer["created_at"] = "1800000000000000000"
	newer["status"] = map[string]any{"Confirmed": nil}
	other := basicRaw()
	other["id"] = "tx-9"

	out := Batch([]map[string]any{older, newer, other})
	if len(out) != 2 {
		t.Fatalf("batch size = %d, want 2", len(out))
	}
	if out[0].ID != "tx-1" || out[0].Status != domain.StatusConfirmed {
		t.Fatalf("dedup kept wrong record: %+v", out[0])
	}
	// Newer-first order within the batch is not promised; membership is.
	if out[1].ID != "tx-9" {
		t.Fatalf("lost distinct record: %+v", out[1])
	}
}

func TestBatchKeepsFirstWhenOlderArrivesSecond(t *testing.T) {
	newer := basicRaw()
	newer["created_at"] = "1800000000000000000"
	older := basicRaw()

	out := Batch([]map[string]any{newer, older})
	if len(out) != 1 || out[0].CreatedAt != 1800000000000000000 {
		t.Fatalf("dedup kept older record: %+v", out)
	}
}

// Normalizing a record, serializing it, and normalizing the result must be
// a fixed point: re-sync paths feed normalized records back through.
func TestNormalizeIdempotent(t *testing.T) {
	for name, raw := range map[string]map[string]any{
		"basic":     basicRaw(),
		"milestone": milestoneRaw(),
	} {
		t.Run(name, func(t *testing.T) {
			first := Normalize(raw)
			data, err := json.Marshal(first)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var round map[string]any
			if err := json.Unmarshal(data, &round); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			second := Normalize(round)
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
			}
		})
	}
}
