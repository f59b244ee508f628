// Package capability decodes GATT characteristic property bitmasks into
// human-readable names.
package capability

import (
	"sort"
	"strings"
)

// Properties is a characteristic property bitmask. Bit values follow
// CoreBluetooth's CBCharacteristicProperties; the low byte matches the
// properties field of the GATT characteristic declaration.
type Properties uint16

const (
	Broadcast                  Properties = 0x0001
	Read                       Properties = 0x0002
	WriteWithoutResponse       Properties = 0x0004
	Write                      Properties = 0x0008
	Notify                     Properties = 0x0010
	Indicate                   Properties = 0x0020
	AuthenticatedSignedWrites  Properties = 0x0040
	ExtendedProperties         Properties = 0x0080
	NotifyEncryptionRequired   Properties = 0x0100
	IndicateEncryptionRequired Properties = 0x0200
)

// Defined is the union of every bit Parse knows about.
const Defined = Broadcast | Read | WriteWithoutResponse | Write | Notify | Indicate |
	AuthenticatedSignedWrites | ExtendedProperties | NotifyEncryptionRequired | IndicateEncryptionRequired

var names = map[Properties]string{
	Broadcast:                  "broadcast（廣播）",
	Read:                       "read（讀取）",
	WriteWithoutResponse:       "writeWithoutResponse（無響應寫入）",
	Write:                      "write（寫入）",
	Notify:                     "notify（通知）",
	Indicate:                   "indicate（指示）",
	AuthenticatedSignedWrites:  "authenticatedSignedWrites（身份驗證簽名寫入）",
	ExtendedProperties:         "extendedProperties（擴展屬性）",
	NotifyEncryptionRequired:   "notifyEncryptionRequired（通知加密要求）",
	IndicateEncryptionRequired: "indicateEncryptionRequired（指示加密要求）",
}

// Parse returns the names of every defined bit present in mask, sorted.
// Bits outside Defined are ignored.
func Parse(mask Properties) []string {
	out := make([]string, 0, len(names))
	for bit, name := range names {
		if mask&bit != 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Names is Parse as a method.
func (p Properties) Names() []string { return Parse(p) }

// Has reports whether every bit of q is set in p.
func (p Properties) Has(q Properties) bool {
	return p&q == q
}

// String renders a compact flag string for log lines, e.g. "RWN" for
// read|write|notify. Order: B R w W N I S E.
func (p Properties) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Properties
		c   byte
	}{
		{Broadcast, 'B'},
		{Read, 'R'},
		{WriteWithoutResponse, 'w'},
		{Write, 'W'},
		{Notify, 'N'},
		{Indicate, 'I'},
		{AuthenticatedSignedWrites, 'S'},
		{ExtendedProperties, 'E'},
	} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		}
	}
	return b.String()
}
