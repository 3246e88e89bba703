package assessment

import (
	"testing"
	"time"
)

func TestPriorityRankOrdering(t *testing.T) {
	if !(PriorityLow.Rank() < PriorityMedium.Rank() &&
		PriorityMedium.Rank() < PriorityHigh.Rank() &&
		PriorityHigh.Rank() < PriorityCritical.Rank()) {
		t.Fatalf("priority ordering broken")
	}
	if Priority("URGENT").Rank() != -1 {
		t.Fatalf("unknown priority should rank -1")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []VerificationStatus{StatusVerified, StatusAutoVerified, StatusRejected} {
		if !s.Terminal() {
			t.Fatalf("expected %s terminal", s)
		}
	}
	for _, s := range []VerificationStatus{StatusDraft, StatusSubmitted} {
		if s.Terminal() {
			t.Fatalf("expected %s non-terminal", s)
		}
	}
}

func TestDecodePayload_RejectsCrossTypeBody(t *testing.T) {
	raw := EncodePayload(HealthPayload{FunctioningClinics: 2, MedicineStockDays: 10})
	if _, err := DecodePayload(TypeFood, raw); err == nil {
		t.Fatalf("expected cross-type payload rejection")
	}
}

func TestFoodGapThresholds(t *testing.T) {
	critical := RapidAssessment{
		Type:     TypeFood,
		Payload:  EncodePayload(FoodPayload{FoodSource: "distribution", AvailableFoodDurationDays: 2}),
		Priority: PriorityHigh,
		Date:     time.Now(),
	}
	gaps := critical.GapIndicators()
	if len(gaps) == 0 || gaps[0].Level != GapCritical {
		t.Fatalf("expected CRITICAL for 2-day food duration, got %+v", gaps)
	}

	stable := RapidAssessment{
		Type:    TypeFood,
		Payload: EncodePayload(FoodPayload{FoodSource: "market", AvailableFoodDurationDays: 10}),
	}
	gaps = stable.GapIndicators()
	if len(gaps) == 0 || gaps[0].Level != GapStable {
		t.Fatalf("expected STABLE for 10-day food duration, got %+v", gaps)
	}
}

func TestWASHGapSphereThresholds(t *testing.T) {
	a := RapidAssessment{
		Type:    TypeWASH,
		Payload: EncodePayload(WASHPayload{WaterSource: "truck", LitersPerPersonDay: 10}),
	}
	gaps := a.GapIndicators()
	if gaps[0].Level != GapAtRisk {
		t.Fatalf("expected AT_RISK below Sphere minimum, got %v", gaps[0].Level)
	}

	a.Payload = EncodePayload(WASHPayload{WaterSource: "truck", LitersPerPersonDay: 5})
	if a.GapIndicators()[0].Level != GapCritical {
		t.Fatalf("expected CRITICAL below half Sphere minimum")
	}
}

func TestSecurityGapArmedPresence(t *testing.T) {
	a := RapidAssessment{
		Type:    TypeSecurity,
		Payload: EncodePayload(SecurityPayload{ArmedPresence: true, SafeAccess: true}),
	}
	if a.GapIndicators()[0].Level != GapCritical {
		t.Fatalf("expected CRITICAL with armed presence")
	}
}

func TestGapIndicators_MalformedPayloadYieldsNone(t *testing.T) {
	a := RapidAssessment{Type: TypeFood, Payload: []byte("{not json")}
	if got := a.GapIndicators(); got != nil {
		t.Fatalf("expected nil indicators for malformed payload, got %+v", got)
	}
}
