package domain

import (
	"encoding/json"
	"testing"
)

func TestRefundStatus_ValidTerminal(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	if RefundStatus("archived").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
	if StatusPending.Terminal() || StatusProcessing.Terminal() {
		t.Fatalf("pending/processing are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusRejected.Terminal() {
		t.Fatalf("completed/rejected are terminal")
	}
}

func TestRefundStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to RefundStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusRejected, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusRejected, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusRejected, StatusProcessing, false},
		{StatusPending, "bogus", false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s→%s = %v; want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRefundPatch_AbsentNullValue(t *testing.T) {
	var p RefundPatch
	body := `{"trackingNumber":null,"reason":"wrong_product"}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Status.Set || p.ReasonNote.Set {
		t.Fatalf("absent keys must not be Set: %+v", p)
	}
	if !p.TrackingNumber.Set || !p.TrackingNumber.Null {
		t.Fatalf("null key must be Set+Null: %+v", p.TrackingNumber)
	}
	cols := p.Columns()
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %#v", cols)
	}
	if v, ok := cols["tracking_number"].(*string); !ok || v != nil {
		t.Fatalf("tracking_number should be a nil *string, got %#v", cols["tracking_number"])
	}
	if v := cols["reason"].(*string); v == nil || *v != "wrong_product" {
		t.Fatalf("reason mismatch: %#v", cols["reason"])
	}
}

func TestRefundPatch_StatusRules(t *testing.T) {
	cases := map[string]bool{
		`{}`:                     false,
		`{"status":null}`:        false,
		`{"status":""}`:          false,
		`{"status":"completed"}`: true,
	}
	for body, want := range cases {
		var p RefundPatch
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			t.Fatalf("unmarshal %s: %v", body, err)
		}
		_, got := p.StatusValue()
		if got != want {
			t.Errorf("%s: status applied = %v; want %v", body, got, want)
		}
		if p.Empty() == want {
			t.Errorf("%s: Empty() = %v", body, p.Empty())
		}
	}
}

func TestOptionalString_Helpers(t *testing.T) {
	if p := Some("x").Ptr(); p == nil || *p != "x" {
		t.Fatalf("Some.Ptr mismatch")
	}
	if Null().Ptr() != nil {
		t.Fatalf("Null.Ptr should be nil")
	}
	var o OptionalString
	if err := json.Unmarshal([]byte(`42`), &o); err == nil {
		t.Fatalf("non-string value should fail")
	}
}
