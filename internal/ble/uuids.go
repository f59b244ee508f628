package ble

import "strings"

const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// ShortUUID returns the 16-bit form ("180f") of a UUID built on the
// Bluetooth base UUID, and the lower-cased input otherwise. "0x180F",
// "180F" and "0000180F-0000-1000-8000-00805F9B34FB" all map to "180f".
func ShortUUID(u string) string {
	s := strings.ToLower(strings.TrimSpace(u))
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 36 && strings.HasSuffix(s, baseUUIDSuffix) && strings.HasPrefix(s, "0000") {
		return s[4:8]
	}
	if len(s) == 8 && strings.HasPrefix(s, "0000") {
		return s[4:]
	}
	return s
}

// SameUUID compares two UUID strings regardless of case and short form.
func SameUUID(a, b string) bool {
	return ShortUUID(a) == ShortUUID(b)
}

// Name returns the assigned name of a well-known service or characteristic,
// or "" when the UUID is not in the table.
func Name(u string) string {
	return knownUUID[ShortUUID(u)]
}

var knownUUID = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"1802": "Immediate Alert",
	"1803": "Link Loss",
	"1804": "Tx Power",
	"1805": "Current Time Service",
	"1806": "Reference Time Update Service",
	"1807": "Next DST Change Service",
	"1808": "Glucose",
	"1809": "Health Thermometer",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180e": "Phone Alert Status Service",
	"180f": "Battery Service",
	"1810": "Blood Pressure",
	"1811": "Alert Notification Service",
	"1812": "Human Interface Device",
	"1813": "Scan Parameters",
	"1814": "Running Speed and Cadence",
	"1815": "Automation IO",
	"1816": "Cycling Speed and Cadence",
	"1818": "Cycling Power",
	"1819": "Location and Navigation",
	"181a": "Environmental Sensing",
	"181b": "Body Composition",
	"181c": "User Data",
	"181d": "Weight Scale",
	"181e": "Bond Management Service",
	"181f": "Continuous Glucose Monitoring",
	"1820": "Internet Protocol Support Service",
	"1821": "Indoor Positioning",
	"1822": "Pulse Oximeter Service",
	"1823": "HTTP Proxy",
	"1824": "Transport Discovery",
	"1825": "Object Transfer Service",
	"1826": "Fitness Machine",
	"1827": "Mesh Provisioning Service",
	"1828": "Mesh Proxy Service",
	"1829": "Reconnection Configuration",
	"183a": "Insulin Delivery",
	"183b": "Binary Sensor",
	"183c": "Emergency Configuration",

	"2902": "Client Characteristic Configuration",
	"2901": "Characteristic User Description",

	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a05": "Service Changed",
	"2a19": "Battery Level",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a27": "Hardware Revision String",
	"2a28": "Software Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",

	"d0611e78-bbb4-4591-a5f8-487910ae4366": "Continuity",
	"03b80e5a-ede8-4b33-a751-6ce34ec4c700": "MIDI",
	"ff10":                                 "Read",
}
