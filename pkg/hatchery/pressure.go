package hatchery

import "sort"

// RolePressure pairs a role name with its convergence pressure — the sum of
// convergence pressures over the dimensions that role influences.
type RolePressure struct {
	Role     string
	Pressure float64
}

// RankByPressure sorts roles by descending pressure, breaking ties
// alphabetically by role name for determinism. Used to order scale-up
// attempts when instance capacity is contended across roles: the role
// furthest from finality gets the next available instance first.
func RankByPressure(pressures []RolePressure) []RolePressure {
	ranked := append([]RolePressure(nil), pressures...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Pressure != ranked[j].Pressure {
			return ranked[i].Pressure > ranked[j].Pressure
		}
		return ranked[i].Role < ranked[j].Role
	})
	return ranked
}
