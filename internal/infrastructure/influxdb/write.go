package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteChargeRate records the instantaneous charging rate.
//
// Called after every successful status refresh while a session is
// active. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - serial: Charger serial number (tag, low cardinality)
//   - amps: Current charge rate in amperes
func (c *Client) WriteChargeRate(serial string, amps float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"charge_rate",
		map[string]string{
			"serial": serial,
		},
		map[string]interface{}{
			"amps": amps,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionEnergy records the running energy total of the current
// charging session.
//
// Parameters:
//   - serial: Charger serial number
//   - energyKWh: Cumulative session energy in kilowatt-hours
func (c *Client) WriteSessionEnergy(serial string, energyKWh float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_energy",
		map[string]string{
			"serial": serial,
		},
		map[string]interface{}{
			"kwh": energyKWh,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionComplete records a finished charging session with its
// exact end time, so completed sessions land at the moment the charger
// reported rather than the moment the supervisor noticed.
//
// Parameters:
//   - serial: Charger serial number
//   - energyKWh: Total energy delivered during the session
//   - endTime: When the session ended, per the charger
func (c *Client) WriteSessionComplete(serial string, energyKWh float64, endTime time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_complete",
		map[string]string{
			"serial": serial,
		},
		map[string]interface{}{
			"kwh": energyKWh,
		},
		endTime,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
