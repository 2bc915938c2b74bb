package model

import "slices"

// MissionError is the mission recorded for a spacecraft with no known
// mission mapping.
const MissionError = "ERROR"

// Enumerations holds the allowed values for the selection fields and the
// spacecraft to mission lookup table. It is read-only once built.
type Enumerations struct {
	Spacecraft    []string          `yaml:"spacecraft"     json:"spacecraft"`
	ThematicAreas []string          `yaml:"thematic_areas" json:"thematic_areas"`
	Missions      map[string]string `yaml:"missions"       json:"missions"`
}

// DefaultEnumerations returns the spacecraft, thematic areas, and mission
// table used by the Swarm data handbook.
func DefaultEnumerations() *Enumerations {
	return &Enumerations{
		Spacecraft: []string{
			"Swarm-A",
			"Swarm-B",
			"Swarm-C",
			"CryoSat-2",
			"GRACE-A",
			"GRACE-B",
			"GRACE-FO-1",
			"GRACE-FO-2",
			"GOCE",
			"CHAMP",
			"Ground observatories",
		},
		ThematicAreas: []string{
			"Magnetic field",
			"Electric field",
			"Ionospheric plasma",
			"Field-aligned currents",
			"Thermosphere",
			"Geodesy",
			"Auxiliary",
			"Models",
		},
		Missions: map[string]string{
			"Swarm-A":              "Swarm",
			"Swarm-B":              "Swarm",
			"Swarm-C":              "Swarm",
			"CryoSat-2":            "CryoSat-2",
			"GRACE-A":              "GRACE",
			"GRACE-B":              "GRACE",
			"GRACE-FO-1":           "GRACE-FO",
			"GRACE-FO-2":           "GRACE-FO",
			"GOCE":                 "GOCE",
			"CHAMP":                "CHAMP",
			"Ground observatories": "INTERMAGNET",
		},
	}
}

// MissionFor returns the mission of spacecraft sc, or MissionError if sc
// has no mapping.
func (e *Enumerations) MissionFor(sc string) string {
	if m, ok := e.Missions[sc]; ok && m != "" {
		return m
	}
	return MissionError
}

// DeriveMissions maps every spacecraft to its mission and returns the sorted
// set of results. Unmapped spacecraft contribute MissionError.
func (e *Enumerations) DeriveMissions(spacecraft []string) []string {
	missions := make([]string, 0, len(spacecraft))
	for _, sc := range spacecraft {
		missions = append(missions, e.MissionFor(sc))
	}
	return NormalizeSet(missions)
}

// IsAllowedSpacecraft reports whether sc is in the spacecraft enumeration.
func (e *Enumerations) IsAllowedSpacecraft(sc string) bool {
	return slices.Contains(e.Spacecraft, sc)
}

// IsAllowedThematicArea reports whether area is in the thematic area
// enumeration.
func (e *Enumerations) IsAllowedThematicArea(area string) bool {
	return slices.Contains(e.ThematicAreas, area)
}
