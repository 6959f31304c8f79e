package models

// Config keys read by the round controller.
const (
	ConfigRoundChannelID      = "round_channel_id"
	ConfigPairingIntervalDays = "pairing_interval_days"
)

// DefaultPairingIntervalDays applies when the interval is unset or invalid.
const DefaultPairingIntervalDays = 7
