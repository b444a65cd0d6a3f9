package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HardwareDeviceName is the path of the VPE device node (e.g. "/dev/transcoder0").
// It implements pflag.Value.
type HardwareDeviceName string

const DefaultHardwareDeviceName = HardwareDeviceName("/dev/transcoder0")

func (n HardwareDeviceName) String() string {
	return string(n)
}

func (n *HardwareDeviceName) Set(s string) error {
	v := HardwareDeviceName(strings.TrimSpace(s))
	if err := v.Validate(); err != nil {
		return err
	}
	*n = v
	return nil
}

func (n *HardwareDeviceName) Type() string {
	return "device"
}

func (n HardwareDeviceName) Validate() error {
	if n == "" {
		return fmt.Errorf("the device name is empty")
	}
	if !strings.HasPrefix(string(n), "/dev/") {
		return fmt.Errorf("the device name '%s' is not a device node path", string(n))
	}
	return nil
}

func (n *HardwareDeviceName) UnmarshalYAML(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return n.Set(s)
}

func (n HardwareDeviceName) MarshalYAML() ([]byte, error) {
	return json.Marshal(string(n))
}
