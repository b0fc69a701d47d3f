package domain

// Mode identifies the subscription-handling behavior configured for a
// webhook. The wire values match the configuration documents produced by
// earlier deployments.
type Mode string

// Modes.
const (
	ModeSingle Mode = "single"
	ModeDrip   Mode = "drip_sequence"
	ModeHybrid Mode = "hybrid_drip"
	ModeMirror Mode = "mirror_autoresponder"
)

// IsValid checks if the mode is recognized.
func (m Mode) IsValid() bool {
	switch m {
	case ModeSingle, ModeDrip, ModeHybrid, ModeMirror:
		return true
	}
	return false
}
