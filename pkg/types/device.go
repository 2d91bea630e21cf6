package types

// Device represents an Android device as reported by `adb devices -l`
type Device struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Model      string `json:"model"`
	Product    string `json:"product,omitempty"`
	Transport  string `json:"transport,omitempty"`
	Type       string `json:"type"` // "wired" or "wireless"
	LastActive int64  `json:"lastActive"`
	IsPinned   bool   `json:"isPinned"`
}

// Online reports whether adb can talk to the device
func (d Device) Online() bool {
	return d.State == "device"
}
