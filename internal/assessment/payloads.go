package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Domain payload sections. Exactly one section is stored per assessment,
// selected by Type, serialized as JSONB.

type FoodPayload struct {
	FoodSource                string   `json:"food_source"`
	AvailableFoodDurationDays int      `json:"available_food_duration_days"`
	MalnutritionCases         int      `json:"malnutrition_cases"`
	GroupsAffected            []string `json:"groups_affected,omitempty"`
	AdditionalDetails         string   `json:"additional_details,omitempty"`
}

type HealthPayload struct {
	FunctioningClinics int      `json:"functioning_clinics"`
	HealthWorkerCount  int      `json:"health_worker_count"`
	DiseaseOutbreaks   []string `json:"disease_outbreaks,omitempty"`
	MedicineStockDays  int      `json:"medicine_stock_days"`
	AdditionalDetails  string   `json:"additional_details,omitempty"`
}

type WASHPayload struct {
	WaterSource          string  `json:"water_source"`
	LitersPerPersonDay   float64 `json:"liters_per_person_day"`
	LatrinesFunctional   int     `json:"latrines_functional"`
	HygieneKitsNeeded    int     `json:"hygiene_kits_needed"`
	WaterQualityConcerns string  `json:"water_quality_concerns,omitempty"`
}

type SecurityPayload struct {
	IncidentCount      int    `json:"incident_count"`
	ArmedPresence      bool   `json:"armed_presence"`
	SafeAccess         bool   `json:"safe_access"`
	PopulationMovement string `json:"population_movement,omitempty"`
	AdditionalDetails  string `json:"additional_details,omitempty"`
}

type ShelterPayload struct {
	HouseholdsWithoutShelter int    `json:"households_without_shelter"`
	SheltersDamaged          int    `json:"shelters_damaged"`
	SheltersDestroyed        int    `json:"shelters_destroyed"`
	NFIKitsNeeded            int    `json:"nfi_kits_needed"`
	AdditionalDetails        string `json:"additional_details,omitempty"`
}

// DecodePayload parses raw into the section matching t. Unknown fields are
// rejected so a FOOD submission cannot smuggle a HEALTH body.
func DecodePayload(t Type, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("payload required for %s assessment", t)
	}

	decode := func(dst any) (any, error) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		return dst, nil
	}

	switch t {
	case TypeFood:
		return decode(&FoodPayload{})
	case TypeHealth:
		return decode(&HealthPayload{})
	case TypeWASH:
		return decode(&WASHPayload{})
	case TypeSecurity:
		return decode(&SecurityPayload{})
	case TypeShelter:
		return decode(&ShelterPayload{})
	default:
		return nil, fmt.Errorf("unknown assessment type %q", t)
	}
}
