// Package domain contains shared types for sequences, subscribers and modes.
package domain

import "strings"

// Channel represents the delivery channel of a sequence step.
type Channel string

// Channels.
const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// IsValid checks if the channel is recognized.
func (c Channel) IsValid() bool {
	switch c.Normalized() {
	case ChannelWhatsApp, ChannelEmail:
		return true
	}
	return false
}

// Normalized returns the channel in canonical lowercase form.
// Configurations arrive from external tooling that is not consistent
// about casing.
func (c Channel) Normalized() Channel {
	return Channel(strings.ToLower(string(c)))
}

// DelayUnit represents the unit of a step delay.
type DelayUnit string

// Delay units.
const (
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
	UnitWeeks   DelayUnit = "weeks"
	UnitMonths  DelayUnit = "months"
)

// minutesPerUnit is calendar-approximate, not calendar-exact: a month is
// a fixed 30 days.
var minutesPerUnit = map[DelayUnit]int{
	UnitMinutes: 1,
	UnitHours:   60,
	UnitDays:    1440,
	UnitWeeks:   10080,
	UnitMonths:  43200,
}

// IsValid checks if the delay unit is recognized.
func (u DelayUnit) IsValid() bool {
	_, ok := minutesPerUnit[u.Normalized()]
	return ok
}

// Normalized returns the unit in canonical lowercase form.
func (u DelayUnit) Normalized() DelayUnit {
	return DelayUnit(strings.ToLower(string(u)))
}
