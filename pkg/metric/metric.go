// Package metric defines the closed set of telemetry metrics known to the
// reporting service. Values mirror the wire enumeration of
// gridpulse.reporting.v1 and are treated as opaque, comparable tokens by the
// query engine.
package metric

import (
	"fmt"
	"sort"
)

// Metric identifies a measured quantity reported by a microgrid component.
type Metric int32

const (
	Unspecified Metric = 0

	ACActivePower   Metric = 1
	ACReactivePower Metric = 2
	ACApparentPower Metric = 3
	ACVoltage       Metric = 4
	ACCurrent       Metric = 5
	ACFrequency     Metric = 6

	DCVoltage Metric = 7
	DCCurrent Metric = 8
	DCPower   Metric = 9

	BatterySOC          Metric = 10
	BatteryTemperature  Metric = 11
	InverterTemperature Metric = 12
)

var names = map[Metric]string{
	Unspecified:         "UNSPECIFIED",
	ACActivePower:       "AC_ACTIVE_POWER",
	ACReactivePower:     "AC_REACTIVE_POWER",
	ACApparentPower:     "AC_APPARENT_POWER",
	ACVoltage:           "AC_VOLTAGE",
	ACCurrent:           "AC_CURRENT",
	ACFrequency:         "AC_FREQUENCY",
	DCVoltage:           "DC_VOLTAGE",
	DCCurrent:           "DC_CURRENT",
	DCPower:             "DC_POWER",
	BatterySOC:          "BATTERY_SOC",
	BatteryTemperature:  "BATTERY_TEMPERATURE",
	InverterTemperature: "INVERTER_TEMPERATURE",
}

var byName = func() map[string]Metric {
	m := make(map[string]Metric, len(names))
	for k, v := range names {
		m[v] = k
	}
	return m
}()

// String returns the wire-level name of the metric, e.g. "AC_ACTIVE_POWER".
func (m Metric) String() string {
	if n, ok := names[m]; ok {
		return n
	}
	return fmt.Sprintf("METRIC(%d)", int32(m))
}

// Known reports whether m is a member of the enumeration. Unspecified is not
// a queryable metric and is therefore not Known.
func (m Metric) Known() bool {
	_, ok := names[m]
	return ok && m != Unspecified
}

// Parse resolves a wire-level metric name. It returns an error for names
// outside the enumeration so that malformed input fails at the boundary
// instead of propagating an unknown value into a request.
func Parse(name string) (Metric, error) {
	m, ok := byName[name]
	if !ok || m == Unspecified {
		return Unspecified, fmt.Errorf("unknown metric %q", name)
	}
	return m, nil
}

// All returns the queryable metrics in ascending wire order.
func All() []Metric {
	all := make([]Metric, 0, len(names)-1)
	for m := range names {
		if m != Unspecified {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}
