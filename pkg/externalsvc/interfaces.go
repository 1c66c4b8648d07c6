// Package externalsvc names the external collaborator interfaces the SSE
// bridge and timer engine call into. Implementations (the LLM/agent
// execution core, the chat-message persistence layer, the platform
// ingest pipeline) are out of scope for this module; only the interfaces
// and a test double (pkg/externalsvc/fake) live here.
package externalsvc

import (
	"context"
	"time"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

// MessageService pushes system messages into a channel's chat history and
// schedules bare agent wake-ups, on behalf of the recurring and one-shot
// timer engines.
type MessageService interface {
	// PushSystemMessage delivers agentMessages as a system message to
	// chatKey. If triggerAgent is true the agent is woken to react to it.
	PushSystemMessage(ctx context.Context, chatKey, agentMessages string, triggerAgent bool) error

	// ScheduleAgentTask wakes the agent for chatKey without an accompanying
	// message (used for trigger_time == 0 and callback-less bare fires).
	ScheduleAgentTask(ctx context.Context, chatKey string) error
}

// MessageCollector is the inbound pipeline entry point fed by the Command
// Router when a client posts a "message" command.
type MessageCollector interface {
	CollectMessage(ctx context.Context, adapter, channel, user string, msg models.PlatformMessage) error
}

// WorkdayResult is the tri-state answer a holiday oracle query can return:
// a definite yes/no, or "unknown" when no data is available for the date
// (the caller falls back to a simpler mode, see pkg/recurring).
type WorkdayResult int

const (
	WorkdayUnknown WorkdayResult = iota
	WorkdayYes
	WorkdayNo
)

// HolidayOracle answers whether a given date is a Chinese working day or
// rest day, backed by pkg/calendar's file-cache + HTTP fallback.
type HolidayOracle interface {
	IsWorkday(ctx context.Context, date time.Time) WorkdayResult
	IsRestday(ctx context.Context, date time.Time) WorkdayResult
}
