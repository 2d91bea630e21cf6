package mcp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockCall records a method call for verification
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockBenchApp is a mock implementation of BenchApp for testing
type MockBenchApp struct {
	mu    sync.Mutex
	Calls []MockCall

	AppVersion string

	// Device
	GetDevicesResult         []Device
	GetDevicesError          error
	CachedAppsSnapshotResult []string
	CachedAppsSnapshotError  error
	AllowListResult          []string

	// Runs
	RunExperimentResult Report
	RunExperimentError  error
	ListRunsResult      []RunSummary
	ListRunsError       error
	Reports             map[string]Report
	DeleteRunError      error
}

// NewMockBenchApp creates a new mock app with default values
func NewMockBenchApp() *MockBenchApp {
	return &MockBenchApp{
		Calls:            make([]MockCall, 0),
		AppVersion:       "1.0.0-test",
		GetDevicesResult: []Device{},
		Reports:          map[string]Report{},
	}
}

// recordCall records a method call
func (m *MockBenchApp) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCalls returns all recorded calls
func (m *MockBenchApp) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.Calls...)
}

// WasMethodCalled checks if a method was called
func (m *MockBenchApp) WasMethodCalled(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.Calls {
		if call.Method == method {
			return true
		}
	}
	return false
}

// GetLastCallByMethod returns the last call to a specific method
func (m *MockBenchApp) GetLastCallByMethod(method string) *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			return &m.Calls[i]
		}
	}
	return nil
}

// ==================== BenchApp ====================

func (m *MockBenchApp) GetAppVersion() string {
	m.recordCall("GetAppVersion")
	return m.AppVersion
}

func (m *MockBenchApp) GetDevices(ctx context.Context) ([]Device, error) {
	m.recordCall("GetDevices")
	return m.GetDevicesResult, m.GetDevicesError
}

func (m *MockBenchApp) CachedAppsSnapshot(ctx context.Context, serial string) ([]string, error) {
	m.recordCall("CachedAppsSnapshot", serial)
	return m.CachedAppsSnapshotResult, m.CachedAppsSnapshotError
}

func (m *MockBenchApp) AllowList() []string {
	m.recordCall("AllowList")
	return m.AllowListResult
}

func (m *MockBenchApp) RunExperiment(ctx context.Context, req ExperimentRequest) (Report, error) {
	m.recordCall("RunExperiment", req)
	return m.RunExperimentResult, m.RunExperimentError
}

func (m *MockBenchApp) ListRuns(limit int) ([]RunSummary, error) {
	m.recordCall("ListRuns", limit)
	return m.ListRunsResult, m.ListRunsError
}

func (m *MockBenchApp) GetReport(runID string) (Report, error) {
	m.recordCall("GetReport", runID)
	rep, ok := m.Reports[runID]
	if !ok {
		return Report{}, errors.New("run not found")
	}
	return rep, nil
}

func (m *MockBenchApp) DeleteRun(runID string) error {
	m.recordCall("DeleteRun", runID)
	if m.DeleteRunError != nil {
		return m.DeleteRunError
	}
	delete(m.Reports, runID)
	return nil
}

// ==================== Fixtures ====================

// SampleDevice returns a sample device for testing
func SampleDevice(id string) Device {
	return Device{
		ID:         id,
		State:      "device",
		Model:      "Pixel_5",
		Type:       "wired",
		LastActive: 1700000000000,
	}
}

// SampleReport returns a small launch report for testing
func SampleReport(runID string) Report {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return Report{
		RunID:        runID,
		Mode:         "launch",
		DeviceSerial: "emulator-5554",
		StartedAt:    start,
		FinishedAt:   start.Add(time.Minute),
		Apps: []AppReport{
			{Package: "com.twitter.android", Hot: []int{57, 41}, Cold: []int{1320}, Other: []int{}},
			{Package: "org.telegram.messenger", Hot: []int{}, Cold: []int{980}, Other: []int{310}},
		},
		CachedCounts: []int{12, 9},
	}
}
