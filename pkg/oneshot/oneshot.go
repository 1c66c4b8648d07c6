// Package oneshot implements the One-shot Timer Service: ad-hoc,
// per-channel delayed agent triggers, persisted to disk for every entry
// without an in-process callback, with restart-grace backfill. Grounded
// line-for-line on the original TimerService's set_timer/_timer_loop/
// _load_persisted_tasks/_persist_tasks, adapted to the Start(ctx)/Stop()
// cooperative-loop idiom used throughout this codebase.
package oneshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeready-toolchain/ssebridge/pkg/externalsvc"
	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

// persistVersion is the on-disk schema tag; a mismatch is treated the same
// as "no persisted state" rather than attempted migration.
const persistVersion = 1

// misfireGraceSeconds bounds how late a persisted timer may be found past
// due at startup and still fire once, marked as a backfill.
const misfireGraceSeconds = 300

const tickInterval = 1 * time.Second

// ErrTriggerTimeInPast is returned by SetTimer when trigger_time is in the
// past (and not the sentinel values 0 or negative). See SPEC_FULL.md §9:
// the wire-level surface still collapses this to success=false, but the Go
// API keeps the distinct error for callers that want it.
var ErrTriggerTimeInPast = errors.New("oneshot: trigger_time is in the past")

type entry struct {
	chatKey     string
	triggerTime int64
	eventDesc   string
	temporary   bool
	callback    func() error
}

// Service schedules and fires ad-hoc, per-channel delayed triggers.
type Service struct {
	msgSvc       externalsvc.MessageService
	persistPath  string
	logger       *slog.Logger

	mu      sync.Mutex
	byChat  map[string][]*entry

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Service that persists callback-less timers to persistPath.
func New(msgSvc externalsvc.MessageService, persistPath string) *Service {
	return &Service{
		msgSvc:      msgSvc,
		persistPath: persistPath,
		logger:      slog.Default().With("component", "oneshot"),
		byChat:      make(map[string][]*entry),
	}
}

// Start loads persisted timers (firing any that are due within grace) and
// launches the one-second tick loop. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.loadPersisted(ctx)

	go s.run(runCtx)
	s.logger.Info("one-shot timer service started")
}

// Stop signals the tick loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("one-shot timer service stopped")
}

// SetTimer implements §4.9's set_timer contract:
//   - trigger_time < 0: clears chatKey's timers (temporary nil=all,
//     true=only temporary, false=only non-temporary).
//   - trigger_time == 0: schedules an immediate agent wake-up.
//   - trigger_time <= now: rejected with ErrTriggerTimeInPast.
//   - override=true: removes chatKey's prior temporary timers first, and
//     the new timer's temporary flag is set to override's value (matching
//     the original's `task.temporary = override` assignment verbatim).
func (s *Service) SetTimer(ctx context.Context, chatKey string, triggerTime int64, eventDesc string, silent, override bool, temporary *bool, callback func() error) (bool, error) {
	if triggerTime < 0 {
		s.clear(chatKey, temporary, silent)
		return true, nil
	}

	if triggerTime == 0 {
		if err := s.msgSvc.ScheduleAgentTask(ctx, chatKey); err != nil {
			return false, fmt.Errorf("schedule immediate agent task: %w", err)
		}
		return true, nil
	}

	if triggerTime <= time.Now().Unix() {
		return false, ErrTriggerTimeInPast
	}

	s.mu.Lock()
	if override {
		kept := s.byChat[chatKey][:0]
		for _, e := range s.byChat[chatKey] {
			if !e.temporary {
				kept = append(kept, e)
			}
		}
		s.byChat[chatKey] = kept
	}
	e := &entry{chatKey: chatKey, triggerTime: triggerTime, eventDesc: eventDesc, temporary: override, callback: callback}
	s.byChat[chatKey] = append(s.byChat[chatKey], e)
	s.mu.Unlock()

	if !silent {
		s.logger.Info("timer set", "chat_key", chatKey, "trigger_time", time.Unix(triggerTime, 0))
	}

	if callback == nil {
		s.persist(ctx)
	}
	return true, nil
}

func (s *Service) clear(chatKey string, temporary *bool, silent bool) {
	s.mu.Lock()
	if temporary == nil {
		delete(s.byChat, chatKey)
	} else {
		kept := s.byChat[chatKey][:0]
		for _, e := range s.byChat[chatKey] {
			if e.temporary != *temporary {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(s.byChat, chatKey)
		} else {
			s.byChat[chatKey] = kept
		}
	}
	s.mu.Unlock()

	if !silent {
		kind := "所有"
		if temporary != nil {
			if *temporary {
				kind = "临时"
			} else {
				kind = "非临时"
			}
		}
		s.logger.Info("timers cleared", "chat_key", chatKey, "kind", kind)
	}
	s.persist(context.Background())
}

// GetTimers returns the pending (untriggered) timers for chatKey.
func (s *Service) GetTimers(chatKey string) []models.OneShotTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.byChat[chatKey]
	out := make([]models.OneShotTimer, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.OneShotTimer{
			ChatKey:     e.chatKey,
			TriggerTime: e.triggerTime,
			EventDesc:   e.eventDesc,
			Temporary:   e.temporary,
			Callback:    e.callback,
		})
	}
	return out
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Service) fireDue(ctx context.Context) {
	now := time.Now().Unix()

	s.mu.Lock()
	var due []*entry
	for chatKey, entries := range s.byChat {
		remaining := entries[:0]
		for _, e := range entries {
			if e.triggerTime <= now {
				due = append(due, e)
			} else {
				remaining = append(remaining, e)
			}
		}
		if len(remaining) == 0 {
			delete(s.byChat, chatKey)
		} else {
			s.byChat[chatKey] = remaining
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	for _, e := range due {
		s.fire(ctx, e, false)
	}
	s.persist(ctx)
}

func (s *Service) fire(ctx context.Context, e *entry, isBackfill bool) {
	if e.callback != nil {
		if err := e.callback(); err != nil {
			s.logger.Error("timer callback failed", "chat_key", e.chatKey, "error", err)
		}
		return
	}

	switch {
	case e.eventDesc != "":
		tag := ""
		if isBackfill {
			tag = "（补发）"
		}
		msg := fmt.Sprintf("⏰ 定时提醒%s：%s", tag, e.eventDesc)
		if err := s.msgSvc.PushSystemMessage(ctx, e.chatKey, msg, true); err != nil {
			s.logger.Error("timer fire failed", "chat_key", e.chatKey, "error", err)
		}
	default:
		if err := s.msgSvc.ScheduleAgentTask(ctx, e.chatKey); err != nil {
			s.logger.Error("timer fire (bare schedule) failed", "chat_key", e.chatKey, "error", err)
		}
	}
}

// loadPersisted restores callback-less timers from disk. Entries already
// past due are fired once if within misfireGraceSeconds, otherwise dropped;
// live entries are rescheduled as usual.
func (s *Service) loadPersisted(ctx context.Context) {
	raw, err := os.ReadFile(s.persistPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("read persisted timers failed", "path", s.persistPath, "error", err)
		}
		return
	}

	var file models.PersistedOneShotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		s.logger.Error("parse persisted timers failed", "path", s.persistPath, "error", err)
		return
	}
	if file.Version != persistVersion {
		s.logger.Error("persisted timers version mismatch, ignoring", "path", s.persistPath, "version", file.Version)
		return
	}

	now := time.Now().Unix()
	var restored, dropped, triggered int

	s.mu.Lock()
	for _, t := range file.Tasks {
		if t.TriggerTime > now {
			s.byChat[t.ChatKey] = append(s.byChat[t.ChatKey], &entry{
				chatKey:     t.ChatKey,
				triggerTime: t.TriggerTime,
				eventDesc:   t.EventDesc,
				temporary:   t.Temporary,
			})
			restored++
			continue
		}

		lag := now - t.TriggerTime
		if lag <= misfireGraceSeconds {
			s.fire(ctx, &entry{chatKey: t.ChatKey, eventDesc: t.EventDesc}, true)
			triggered++
		} else {
			dropped++
		}
	}
	s.mu.Unlock()

	s.logger.Info("persisted timers restored", "restored", restored, "triggered", triggered, "dropped", dropped)
}

// persist writes every callback-less timer to disk atomically (temp file +
// rename), matching the original's aiofiles-write-then-replace sequence
// and pkg/calendar's same atomic-write idiom.
func (s *Service) persist(_ context.Context) {
	s.mu.Lock()
	var tasks []models.PersistedOneShotTimer
	for _, entries := range s.byChat {
		for _, e := range entries {
			if e.callback != nil {
				continue
			}
			tasks = append(tasks, models.PersistedOneShotTimer{
				ChatKey:     e.chatKey,
				TriggerTime: e.triggerTime,
				EventDesc:   e.eventDesc,
				Temporary:   e.temporary,
			})
		}
	}
	s.mu.Unlock()

	payload := models.PersistedOneShotFile{Version: persistVersion, Tasks: tasks}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal persisted timers failed", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.persistPath), 0o755); err != nil {
		s.logger.Error("create persist dir failed", "path", s.persistPath, "error", err)
		return
	}
	tmp := s.persistPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		s.logger.Error("write persisted timers tmp file failed", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.persistPath); err != nil {
		s.logger.Error("rename persisted timers file failed", "path", s.persistPath, "error", err)
	}
}
