package models

// OneShotTimer is an ad-hoc delayed trigger scoped to a single channel.
// Callback is only ever set in-process (e.g. a holiday reminder wired by
// the host application) and is never persisted; only callback-less timers
// survive a restart.
type OneShotTimer struct {
	ChatKey     string
	TriggerTime int64
	EventDesc   string
	Temporary   bool
	Callback    func() error
}

// PersistedOneShotFile is the on-disk shape, version-tagged per the
// original implementation's restart-compatibility contract.
type PersistedOneShotFile struct {
	Version int                     `json:"version"`
	Tasks   []PersistedOneShotTimer `json:"tasks"`
}

// PersistedOneShotTimer is one entry of PersistedOneShotFile.
type PersistedOneShotTimer struct {
	ChatKey     string `json:"chat_key"`
	TriggerTime int64  `json:"trigger_time"`
	EventDesc   string `json:"event_desc"`
	Temporary   bool   `json:"temporary"`
}
