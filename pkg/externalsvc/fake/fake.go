// Package fake provides in-memory test doubles for pkg/externalsvc,
// recording calls so tests can assert on them without a real chat core.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/ssebridge/pkg/externalsvc"
	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

// PushedMessage records one PushSystemMessage call.
type PushedMessage struct {
	ChatKey      string
	AgentMessages string
	TriggerAgent bool
}

// MessageService is a recording fake of externalsvc.MessageService.
type MessageService struct {
	mu sync.Mutex

	Pushed    []PushedMessage
	Scheduled []string

	// FailPush, when non-nil, is returned by every PushSystemMessage call
	// (used to simulate JobExecutionError scenarios).
	FailPush error
}

func (m *MessageService) PushSystemMessage(_ context.Context, chatKey, agentMessages string, triggerAgent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPush != nil {
		return m.FailPush
	}
	m.Pushed = append(m.Pushed, PushedMessage{ChatKey: chatKey, AgentMessages: agentMessages, TriggerAgent: triggerAgent})
	return nil
}

func (m *MessageService) ScheduleAgentTask(_ context.Context, chatKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scheduled = append(m.Scheduled, chatKey)
	return nil
}

// Snapshot returns a copy of the recorded calls for safe inspection.
func (m *MessageService) Snapshot() ([]PushedMessage, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pushed := make([]PushedMessage, len(m.Pushed))
	copy(pushed, m.Pushed)
	scheduled := make([]string, len(m.Scheduled))
	copy(scheduled, m.Scheduled)
	return pushed, scheduled
}

// MessageCollector is a recording fake of externalsvc.MessageCollector.
type MessageCollector struct {
	mu       sync.Mutex
	Received []models.PlatformMessage
}

func (m *MessageCollector) CollectMessage(_ context.Context, _, _, _ string, msg models.PlatformMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Received = append(m.Received, msg)
	return nil
}

// HolidayOracle is a map-backed fake of externalsvc.HolidayOracle.
type HolidayOracle struct {
	mu       sync.Mutex
	Workdays map[string]bool // "2024-10-01" -> is workday
}

func NewHolidayOracle() *HolidayOracle {
	return &HolidayOracle{Workdays: make(map[string]bool)}
}

func (h *HolidayOracle) Set(date time.Time, isWorkday bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Workdays[date.Format("2006-01-02")] = isWorkday
}

func (h *HolidayOracle) IsWorkday(_ context.Context, date time.Time) externalsvc.WorkdayResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.Workdays[date.Format("2006-01-02")]
	if !ok {
		return externalsvc.WorkdayUnknown
	}
	if v {
		return externalsvc.WorkdayYes
	}
	return externalsvc.WorkdayNo
}

func (h *HolidayOracle) IsRestday(ctx context.Context, date time.Time) externalsvc.WorkdayResult {
	switch h.IsWorkday(ctx, date) {
	case externalsvc.WorkdayYes:
		return externalsvc.WorkdayNo
	case externalsvc.WorkdayNo:
		return externalsvc.WorkdayYes
	default:
		return externalsvc.WorkdayUnknown
	}
}
