package assessment

import "encoding/json"

// Gap indicators are presentational derivations of payload values. They are
// never persisted; readers recompute them on every request so threshold
// changes apply retroactively.

type GapLevel string

const (
	GapStable   GapLevel = "STABLE"
	GapAtRisk   GapLevel = "AT_RISK"
	GapCritical GapLevel = "CRITICAL"
)

type GapIndicator struct {
	Dimension string   `json:"dimension"`
	Level     GapLevel `json:"level"`
	Detail    string   `json:"detail,omitempty"`
}

// Sphere-derived thresholds.
const (
	foodCriticalDays  = 3
	foodAtRiskDays    = 7
	medicineStockDays = 3
	washMinimumLPD    = 15.0 // Sphere minimum liters/person/day
	washCriticalLPD   = 7.5
)

// GapIndicators derives indicators for a stored assessment. Payloads that
// fail to decode yield no indicators rather than an error; the queue view
// stays usable even with malformed historical rows.
func (a RapidAssessment) GapIndicators() []GapIndicator {
	p, err := DecodePayload(a.Type, a.Payload)
	if err != nil {
		return nil
	}
	return deriveGaps(a.Type, p)
}

func deriveGaps(t Type, payload any) []GapIndicator {
	switch t {
	case TypeFood:
		return foodGaps(payload.(*FoodPayload))
	case TypeHealth:
		return healthGaps(payload.(*HealthPayload))
	case TypeWASH:
		return washGaps(payload.(*WASHPayload))
	case TypeSecurity:
		return securityGaps(payload.(*SecurityPayload))
	case TypeShelter:
		return shelterGaps(payload.(*ShelterPayload))
	default:
		return nil
	}
}

func foodGaps(p *FoodPayload) []GapIndicator {
	level := GapStable
	switch {
	case p.AvailableFoodDurationDays < foodCriticalDays:
		level = GapCritical
	case p.AvailableFoodDurationDays < foodAtRiskDays:
		level = GapAtRisk
	}
	out := []GapIndicator{{Dimension: "food_duration", Level: level}}
	if p.MalnutritionCases > 0 {
		out = append(out, GapIndicator{Dimension: "malnutrition", Level: GapCritical})
	}
	return out
}

func healthGaps(p *HealthPayload) []GapIndicator {
	var out []GapIndicator
	if p.FunctioningClinics == 0 {
		out = append(out, GapIndicator{Dimension: "clinics", Level: GapCritical, Detail: "no functioning clinics"})
	}
	level := GapStable
	switch {
	case p.MedicineStockDays < medicineStockDays:
		level = GapCritical
	case p.MedicineStockDays < 2*medicineStockDays:
		level = GapAtRisk
	}
	out = append(out, GapIndicator{Dimension: "medicine_stock", Level: level})
	if len(p.DiseaseOutbreaks) > 0 {
		out = append(out, GapIndicator{Dimension: "outbreaks", Level: GapCritical})
	}
	return out
}

func washGaps(p *WASHPayload) []GapIndicator {
	level := GapStable
	switch {
	case p.LitersPerPersonDay < washCriticalLPD:
		level = GapCritical
	case p.LitersPerPersonDay < washMinimumLPD:
		level = GapAtRisk
	}
	return []GapIndicator{{Dimension: "water_quantity", Level: level}}
}

func securityGaps(p *SecurityPayload) []GapIndicator {
	level := GapStable
	if p.ArmedPresence || !p.SafeAccess {
		level = GapCritical
	} else if p.IncidentCount > 0 {
		level = GapAtRisk
	}
	return []GapIndicator{{Dimension: "security", Level: level}}
}

func shelterGaps(p *ShelterPayload) []GapIndicator {
	level := GapStable
	switch {
	case p.HouseholdsWithoutShelter > 0 && p.NFIKitsNeeded > 0:
		level = GapCritical
	case p.HouseholdsWithoutShelter > 0 || p.SheltersDestroyed > 0:
		level = GapAtRisk
	}
	return []GapIndicator{{Dimension: "shelter", Level: level}}
}

// WithGaps decorates an assessment for API responses.
type WithGaps struct {
	RapidAssessment
	GapIndicators []GapIndicator `json:"gap_indicators"`
}

func Decorate(a RapidAssessment) WithGaps {
	gaps := a.GapIndicators()
	if gaps == nil {
		gaps = []GapIndicator{}
	}
	return WithGaps{RapidAssessment: a, GapIndicators: gaps}
}

// EncodePayload is a test/intake helper to serialize a typed section.
func EncodePayload(p any) json.RawMessage {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return raw
}
