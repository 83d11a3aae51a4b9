package wallbox

import "fmt"

// SerialInfo is the device identity reported by the serial endpoint.
type SerialInfo struct {
	SerialNumber string `json:"serialNumber"`
}

// FirmwareVersions holds the version fields of both controllers on the board.
type FirmwareVersions struct {
	ESP   ESPFirmware   `json:"esp"`
	Atmel AtmelFirmware `json:"atmel"`
}

// ESPFirmware is the network controller firmware version.
type ESPFirmware struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// String renders the version as "major.minor.patch".
func (f ESPFirmware) String() string {
	return fmt.Sprintf("%d.%d.%d", f.Major, f.Minor, f.Patch)
}

// AtmelFirmware is the charge controller firmware version.
type AtmelFirmware struct {
	Major       int `json:"major"`
	Minor       int `json:"minor"`
	Revision    int `json:"revision"`
	BuildNumber int `json:"buildNumber"`
}

// String renders the version as "major.minor.revision.buildNumber".
func (f AtmelFirmware) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", f.Major, f.Minor, f.Revision, f.BuildNumber)
}

// SetupStatus reports outstanding setup issues per subsystem.
// A true field means the subsystem still has a problem; consumers
// usually want the negation ("setup complete").
type SetupStatus struct {
	Network          bool `json:"network"`
	AmbientLight     bool `json:"ambientLight"`
	MaxChargingPower bool `json:"maxChargingPower"`
}

// LoadConfig is the configured maximum charging current.
type LoadConfig struct {
	MaxCurrent int `json:"maxCurrent"`
}

// NetworkStatus reports the link state of each interface as a device
// string; "Connected" is the only value meaning up.
type NetworkStatus struct {
	Ethernet string `json:"ethernet"`
	WLAN     string `json:"wlan"`
}

// ErrorFlags reports whether the charge controller has an active error.
type ErrorFlags struct {
	Error bool `json:"error"`
}

// TransactionStatus is the live state of the charge point.
type TransactionStatus struct {
	// OcppCpState is the OCPP charge point state string; "Available"
	// means no vehicle session is active.
	OcppCpState              string  `json:"ocppCpState"`
	CurrentChargeRate        float64 `json:"currentChargeRate"`
	SecondsSinceChargeStart  int     `json:"secondsSinceChargeStart"`
	CurrentTransactionEnergy float64 `json:"currentTransactionEnergy"`
}

// TransactionRecord is one completed charging session as the device
// reports it: timestamps as "2006-01-02 15:04:05 MST"-style strings
// (sometimes with the device's odd "GMT+00:00" zone marker) and energy
// in watt hours.
type TransactionRecord struct {
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Energy    float64 `json:"energy"`
}

// RFIDTag is one authorized tag stored on the device.
type RFIDTag struct {
	TagID []int  `json:"tagId"`
	Name  string `json:"name"`
}

// TagIDToHex renders a tag ID byte list as an uppercase hex string,
// the form shown to users and used to select tags for deletion.
func TagIDToHex(tagID []int) string {
	out := make([]byte, 0, len(tagID)*2)
	for _, b := range tagID {
		out = fmt.Appendf(out, "%02X", b)
	}
	return string(out)
}
