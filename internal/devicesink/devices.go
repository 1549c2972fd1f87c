package devicesink

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// DeviceInfo is the serializable device description the introspection
// server exposes over /devices, mirroring the fields the route model
// (Route.DeviceID) actually keys off.
type DeviceInfo struct {
	Name              string  `json:"name"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefaultOutput   bool    `json:"is_default_output"`
}

// ListOutputDevices enumerates the platform's output-capable audio devices,
// grounded on the teacher's portaudio.Devices()/resolveDevice lookup in
// client/audio.go and this package's own resolveOutputDevice.
func ListOutputDevices() ([]DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("devicesink: list devices: %w", err)
	}

	defaultDev, err := portaudio.DefaultOutputDevice()
	var defaultName string
	if err == nil && defaultDev != nil {
		defaultName = defaultDev.Name
	}

	var out []DeviceInfo
	for _, d := range devices {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:              d.Name,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefaultOutput:   d.Name == defaultName,
		})
	}
	return out, nil
}
