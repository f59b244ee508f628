package central

import (
	"bytes"
	"slices"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/capability"
)

// Profile is the GATT tree discovered on a device.
type Profile struct {
	Services []ProfileService
}

// ProfileService is one discovered service.
type ProfileService struct {
	UUID            string
	Primary         bool
	Characteristics []ProfileCharacteristic
}

// ProfileCharacteristic is one discovered characteristic with its last
// known value.
type ProfileCharacteristic struct {
	UUID        string
	Properties  capability.Properties
	Value       []byte
	Notifying   bool
	Descriptors []ble.Descriptor
}

func (p *Profile) service(uuid string) *ProfileService {
	for i := range p.Services {
		if ble.SameUUID(p.Services[i].UUID, uuid) {
			return &p.Services[i]
		}
	}
	return nil
}

// Characteristic finds a characteristic by service and characteristic UUID.
func (p *Profile) Characteristic(service, char string) (*ProfileCharacteristic, bool) {
	s := p.service(service)
	if s == nil {
		return nil, false
	}
	for i := range s.Characteristics {
		if ble.SameUUID(s.Characteristics[i].UUID, char) {
			return &s.Characteristics[i], true
		}
	}
	return nil, false
}

func (p *Profile) setServices(svcs []ble.Service) {
	p.Services = p.Services[:0]
	for _, s := range svcs {
		p.Services = append(p.Services, ProfileService{UUID: s.UUID, Primary: s.Primary})
	}
}

func (p *Profile) setCharacteristics(service string, chars []ble.Characteristic) {
	s := p.service(service)
	if s == nil {
		return
	}
	s.Characteristics = s.Characteristics[:0]
	for _, c := range chars {
		s.Characteristics = append(s.Characteristics, ProfileCharacteristic{
			UUID:       c.UUID,
			Properties: c.Properties,
			Value:      bytes.Clone(c.Value),
		})
	}
}

func (p *Profile) setDescriptors(service, char string, descs []ble.Descriptor) {
	if c, ok := p.Characteristic(service, char); ok {
		c.Descriptors = slices.Clone(descs)
	}
}

func (p *Profile) removeServices(uuids []string) {
	p.Services = slices.DeleteFunc(p.Services, func(s ProfileService) bool {
		return slices.ContainsFunc(uuids, func(u string) bool { return ble.SameUUID(u, s.UUID) })
	})
}

// clone deep-copies the profile so snapshots handed to consumers never
// alias manager state.
func (p *Profile) clone() Profile {
	out := Profile{Services: make([]ProfileService, len(p.Services))}
	for i, s := range p.Services {
		cs := ProfileService{UUID: s.UUID, Primary: s.Primary, Characteristics: make([]ProfileCharacteristic, len(s.Characteristics))}
		for j, c := range s.Characteristics {
			c.Value = bytes.Clone(c.Value)
			c.Descriptors = slices.Clone(c.Descriptors)
			cs.Characteristics[j] = c
		}
		out.Services[i] = cs
	}
	return out
}

// CharacteristicCount counts characteristics across all services.
func (p Profile) CharacteristicCount() int {
	n := 0
	for _, s := range p.Services {
		n += len(s.Characteristics)
	}
	return n
}
