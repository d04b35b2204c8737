package mockserver

import (
	"fmt"
	"os"

	"github.com/jmerrifield20/menderapi/pkg/client"
	"gopkg.in/yaml.v3"
)

// inventoryFile is the layout of a YAML inventory fixture.
type inventoryFile struct {
	Devices []client.Device `yaml:"devices"`
}

// ParseDevices decodes a YAML inventory fixture.
func ParseDevices(data []byte) ([]client.Device, error) {
	var f inventoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	for i, d := range f.Devices {
		for j, a := range d.Attributes {
			if a.Name == "" {
				return nil, fmt.Errorf("device %d attribute %d: missing name", i, j)
			}
		}
	}
	return f.Devices, nil
}

// LoadDevices reads a YAML inventory fixture from path.
func LoadDevices(path string) ([]client.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", path, err)
	}
	return ParseDevices(data)
}

// SampleDevices is a small inventory used when no fixture is configured.
func SampleDevices() []client.Device {
	return []client.Device{
		{
			ID: "6a1c4c2e-8f0b-4b0e-9c57-0d1b0c1e2f01",
			Attributes: []client.Attribute{
				{Name: "mac", Value: "dc:a6:32:00:00:01", Scope: client.ScopeIdentity},
				{Name: "hostname", Value: "dev1", Scope: client.ScopeInventory},
				{Name: "device_type", Value: "raspberrypi4", Scope: client.ScopeInventory},
			},
		},
		{
			ID: "6a1c4c2e-8f0b-4b0e-9c57-0d1b0c1e2f02",
			Attributes: []client.Attribute{
				{Name: "mac", Value: "dc:a6:32:00:00:02", Scope: client.ScopeIdentity},
				{Name: "hostname", Value: "dev2", Scope: client.ScopeInventory},
				{Name: "device_type", Value: "raspberrypi4", Scope: client.ScopeInventory},
			},
		},
	}
}
