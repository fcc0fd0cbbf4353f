// Package config is the JSON-tagged configuration store of spec.md §6's
// option table, grounded on goblimey-go-ntrip's jsonconfig package (plain
// struct + json tags, loaded once at startup and held read-only by the
// rest of the driver).
package config

// Provider selects which wire decoder (NMEA or UBX) the task driver feeds
// (spec.md §6 "provider"). The configurator does not read it: every
// provider with a port runs the same UBX baud-detection and CONFIGURE
// sequence.
type Provider string

const (
	ProviderNMEA    Provider = "NMEA"
	ProviderUBLOX   Provider = "UBLOX"
	ProviderMSP     Provider = "MSP"
	ProviderVirtual Provider = "VIRTUAL"
)

// AutoConfig toggles whether CONFIGURE runs at all.
type AutoConfig string

const (
	AutoConfigOff AutoConfig = "OFF"
	AutoConfigOn  AutoConfig = "ON"
)

// SBASMode selects the PRN scan mask applied during CONFIGURE (spec.md §6
// SBAS PRN mask table).
type SBASMode string

const (
	SBASNone  SBASMode = "NONE"
	SBASAuto  SBASMode = "AUTO"
	SBASEgnos SBASMode = "EGNOS"
	SBASWaas  SBASMode = "WAAS"
	SBASMsas  SBASMode = "MSAS"
	SBASGagan SBASMode = "GAGAN"
)

// UTCStandard names a CFG-NAVSPG-UTCSTANDARD value. The CONFIGURE sequence
// does not write this option to the receiver.
type UTCStandard string

const (
	UTCAuto UTCStandard = "AUTO"
	UTCUSNO UTCStandard = "USNO"
	UTCEU   UTCStandard = "EU"
	UTCSU   UTCStandard = "SU"
	UTCNTSC UTCStandard = "NTSC"
)

// Config is the full set of options spec.md §6 enumerates. JSON-tagged so
// it can be loaded from the same on-disk store the rest of the flight
// controller's configuration lives in.
type Config struct {
	Provider            Provider    `json:"provider"`
	BaudRateIndex       int         `json:"gps_baudrateIndex"`
	UpdateRateHz        int         `json:"gps_update_rate_hz"`
	AutoConfig          AutoConfig  `json:"autoConfig"`
	SBASMode            SBASMode    `json:"sbasMode"`
	SBASIntegrity       bool        `json:"sbas_integrity"`
	UbloxUTCStandard    UTCStandard `json:"gps_ublox_utc_standard"`
	UbloxUseGalileo     bool        `json:"gps_ublox_use_galileo"`
	UbloxAcquireModel   int         `json:"gps_ublox_acquire_model"`
	UbloxFlightModel    int         `json:"gps_ublox_flight_model"`
	Use3DSpeed          bool        `json:"gps_use_3d_speed"`
	SetHomePointOnce    bool        `json:"gps_set_home_point_once"`
	NMEACustomCommands  string      `json:"nmeaCustomCommands"`
}

// Default returns a Config matching the teacher's DefaultSerialConfig
// posture: UBX over autobaud-detected serial, no SBAS override, acquisition
// and flight dynamic models left at their receiver defaults (0 -> "+1
// offset" no-op per spec.md §6).
func Default() Config {
	return Config{
		Provider:         ProviderUBLOX,
		BaudRateIndex:    0,
		UpdateRateHz:     5,
		AutoConfig:       AutoConfigOn,
		SBASMode:         SBASAuto,
		UbloxUTCStandard: UTCAuto,
	}
}

// SBASPRNMask returns the PRN scan mask bits for the configured SBASMode,
// per spec.md §6's table. AUTO and NONE both scan nothing themselves (AUTO
// lets the receiver pick; NONE disables SBAS outright at the CFG-GNSS
// step), so only the four named regions carry an explicit bit mask here.
func SBASPRNMask(mode SBASMode) uint32 {
	// Bit N corresponds to PRN (120+N), per u-blox's scanmode1 encoding.
	bit := func(prn int) uint32 { return 1 << uint(prn-120) }
	switch mode {
	case SBASEgnos:
		return bit(123) | bit(126) | bit(136)
	case SBASWaas:
		return bit(131) | bit(133) | bit(135) | bit(138)
	case SBASMsas:
		return bit(129) | bit(137)
	case SBASGagan:
		return bit(127) | bit(128) | bit(132)
	default:
		return 0
	}
}
