package main

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"Fleetbench/pkg/types"
)

// deviceIDPattern 用于验证 deviceId 格式
// 支持以下格式:
// - USB 序列号: 字母数字下划线，如 "1234567890ABCDEF", "emulator-5554"
// - 无线设备: IP:端口，如 "192.168.1.100:5555"
// - mDNS 设备: 如 "adb-xxxxx._adb-tls-connect._tcp."
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

// ValidateDeviceID 验证 deviceId 格式是否安全
// 返回 error 如果格式无效
func ValidateDeviceID(deviceId string) error {
	if deviceId == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if len(deviceId) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !deviceIDPattern.MatchString(deviceId) {
		return fmt.Errorf("invalid device ID format: contains illegal characters")
	}
	return nil
}

// ParseDevices parses `adb devices -l` output
//
//	List of devices attached
//	0A211FDD4000GQ         device usb:1-1 product:redfin model:Pixel_5 device:redfin transport_id:3
//	192.168.1.23:5555      device product:redfin model:Pixel_5 device:redfin transport_id:4
//	emulator-5554          offline transport_id:1
func ParseDevices(output string) []types.Device {
	var devices []types.Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		d := types.Device{ID: parts[0], State: parts[1], Type: "wired"}
		for _, p := range parts[2:] {
			k, v, ok := strings.Cut(p, ":")
			if !ok {
				continue
			}
			switch k {
			case "model":
				d.Model = strings.ReplaceAll(v, "_", " ")
			case "product":
				d.Product = v
			case "transport_id":
				d.Transport = v
			}
		}
		if strings.Contains(d.ID, ":") || strings.Contains(d.ID, "._adb-tls-connect.") {
			d.Type = "wireless"
		}
		devices = append(devices, d)
	}
	return devices
}

// GetDevices returns the attached devices, pinned and recently used first
func (a *App) GetDevices(ctx context.Context) ([]types.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := a.newAdbCommand(ctx, "devices", "-l")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to run adb devices (path: %s): %w, output: %s", a.adbPath, err, string(output))
	}

	devices := ParseDevices(string(output))
	pinned := a.settings.GetPinnedSerial()
	for i := range devices {
		devices[i].IsPinned = devices[i].ID == pinned
		devices[i].LastActive = a.settings.GetLastActive(devices[i].ID)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].IsPinned != devices[j].IsPinned {
			return devices[i].IsPinned
		}
		return devices[i].LastActive > devices[j].LastActive
	})
	return devices, nil
}

// SelectDevice decides which serial the next run talks to: the explicit
// serial, then the pinned device, then the only online device.
func (a *App) SelectDevice(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateDeviceID(explicit); err != nil {
			return "", fmt.Errorf("invalid device ID: %w", err)
		}
		return explicit, nil
	}

	devices, err := a.GetDevices(ctx)
	if err != nil {
		return "", err
	}
	var online []types.Device
	for _, d := range devices {
		if d.Online() {
			online = append(online, d)
		}
	}

	pinned := a.settings.GetPinnedSerial()
	for _, d := range online {
		if d.ID == pinned {
			return d.ID, nil
		}
	}
	switch len(online) {
	case 0:
		return "", fmt.Errorf("no online device found")
	case 1:
		return online[0].ID, nil
	}
	ids := make([]string, 0, len(online))
	for _, d := range online {
		ids = append(ids, d.ID)
	}
	return "", fmt.Errorf("multiple devices attached (%s), pass --serial or pin one", strings.Join(ids, ", "))
}

// TogglePinDevice pins serial, or unpins it when it is already pinned
func (a *App) TogglePinDevice(serial string) (bool, error) {
	if err := ValidateDeviceID(serial); err != nil {
		return false, err
	}
	pinned := a.settings.GetPinnedSerial() != serial
	if pinned {
		a.settings.SetPinnedSerial(serial)
	} else {
		a.settings.SetPinnedSerial("")
	}
	DeviceLog().Str("device", serial).Bool("pinned", pinned).Msg("Pin changed")
	return pinned, a.settings.SaveSettings()
}

// updateLastActive records that serial was used now
func (a *App) updateLastActive(serial string) {
	if serial == "" {
		return
	}
	a.settings.SetLastActive(serial, time.Now().Unix())
	if err := a.settings.SaveSettings(); err != nil {
		LogWarn("device").Err(err).Msg("Failed to save settings")
	}
}
