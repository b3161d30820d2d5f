package modes

import (
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/profile"
)

// #region descriptor
// Descriptor is the static description of a mode: its intent, home persona,
// optional home device, and the defaults seeded into new profiles.
type Descriptor struct {
	Mode               policy.Mode
	Intent             string
	HomePersona        policy.Persona
	HomeDevice         string // "" = device-neutral
	DefaultPreferences []profile.Preference
	DefaultConstraints []policy.Constraint
}

// #endregion descriptor

// #region descriptor-table

// Describe returns the static descriptor for a mode. The switch is
// exhaustive over the mode enumeration.
func Describe(m policy.Mode) Descriptor {
	switch m {
	case policy.ModeWork:
		return Descriptor{
			Mode:        policy.ModeWork,
			Intent:      "focused execution across inbox and tasks",
			HomePersona: policy.PersonaOperations,
			HomeDevice:  policy.DeviceWorkstation,
			DefaultPreferences: []profile.Preference{
				{Key: "layout", Value: "dense"},
				{Key: "notifications", Value: "work-only"},
			},
			DefaultConstraints: []policy.Constraint{
				{
					ID:          "work-default-max-risk",
					Severity:    policy.SeveritySoft,
					Active:      true,
					Description: "flag high-risk actions during work",
					Params:      policy.MaxRisk{Max: policy.RiskMedium},
				},
			},
		}
	case policy.ModeFinance:
		return Descriptor{
			Mode:        policy.ModeFinance,
			Intent:      "reviewing accounts, budgets and transactions",
			HomePersona: policy.PersonaOperations,
			HomeDevice:  policy.DeviceWorkstation,
			DefaultPreferences: []profile.Preference{
				{Key: "layout", Value: "tables"},
				{Key: "risk-threshold", Value: string(policy.RiskLow)},
			},
			DefaultConstraints: []policy.Constraint{
				{
					ID:          "finance-default-confirm",
					Severity:    policy.SeveritySoft,
					Active:      true,
					Description: "confirm money-moving actions",
					Params:      policy.RequireConfirmation{Note: "confirm changes to financial records"},
				},
			},
		}
	case policy.ModeSocial:
		return Descriptor{
			Mode:        policy.ModeSocial,
			Intent:      "staying in touch with people and follow-ups",
			HomePersona: policy.PersonaSocial,
			HomeDevice:  policy.DevicePhone,
			DefaultPreferences: []profile.Preference{
				{Key: "layout", Value: "cards"},
				{Key: "notifications", Value: "all"},
			},
		}
	case policy.ModeJournal:
		return Descriptor{
			Mode:        policy.ModeJournal,
			Intent:      "private reflection and review",
			HomePersona: policy.PersonaReflective,
			DefaultPreferences: []profile.Preference{
				{Key: "layout", Value: "minimal"},
				{Key: "notifications", Value: "muted"},
			},
		}
	case policy.ModeHome:
		return Descriptor{
			Mode:        policy.ModeHome,
			Intent:      "household errands and personal admin",
			HomePersona: policy.PersonaPersonal,
			DefaultPreferences: []profile.Preference{
				{Key: "layout", Value: "comfortable"},
			},
		}
	case policy.ModeDefault:
		return Descriptor{
			Mode:        policy.ModeDefault,
			Intent:      "general-purpose browsing",
			HomePersona: policy.PersonaPersonal,
			DefaultPreferences: []profile.Preference{
				{Key: "layout", Value: "comfortable"},
				{Key: "notifications", Value: "default"},
			},
		}
	default:
		return Descriptor{
			Mode:        m,
			Intent:      "general-purpose browsing",
			HomePersona: policy.HomePersona(m),
		}
	}
}

// SeedDefaults is a profile.SeedFunc backed by the descriptor table.
func SeedDefaults(m policy.Mode) ([]profile.Preference, []policy.Constraint) {
	d := Describe(m)
	return d.DefaultPreferences, d.DefaultConstraints
}

// #endregion descriptor-table
