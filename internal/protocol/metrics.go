package protocol

import (
	"encoding/json"
	"time"
)

// Metric is implemented by all outbound message types
type Metric interface {
	MetricType() string
}

// Envelope wraps any message with metadata for transmission
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
	Data      Metric    `json:"data"`
}

// MarshalJSON ensures proper serialization with the concrete type
func (e Envelope) MarshalJSON() ([]byte, error) {
	type Alias Envelope
	return json.Marshal(&struct {
		Alias
		Data any `json:"data"`
	}{
		Alias: Alias(e),
		Data:  e.Data,
	})
}

func (CPUMessage) MetricType() string     { return "cpu" }
func (ProcessMessage) MetricType() string { return "process" }

// CPUInfo is the usage of the aggregate or a single core. Timestamps are
// Unix milliseconds.
type CPUInfo struct {
	Name      string  `json:"name"`
	Usage     float64 `json:"usage"`
	Timestamp int64   `json:"timestamp"`
}

type CPUMessage struct {
	Aggregate CPUInfo   `json:"aggregate"`
	Cores     []CPUInfo `json:"cores,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

type ThreadInfo struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Usage     float64 `json:"usage"`
	Timestamp int64   `json:"timestamp"`
}

// MemInfo values are in kB.
type MemInfo struct {
	Peak      uint64 `json:"peak"`
	Size      uint64 `json:"size"`
	HWM       uint64 `json:"hwm"`
	RSS       uint64 `json:"rss"`
	Timestamp int64  `json:"timestamp"`
}

type ProcessInfo struct {
	ID      int          `json:"id"`
	Name    string       `json:"name"`
	Threads []ThreadInfo `json:"threads"`
	Mem     MemInfo      `json:"mem"`
}

type ProcessMessage struct {
	Infos     []ProcessInfo `json:"infos"`
	Timestamp int64         `json:"timestamp"`
}

// Snapshot is everything measured during one tick.
type Snapshot struct {
	Timestamp time.Time
	CPU       CPUMessage
	Processes ProcessMessage
}

// Envelopes splits the snapshot into its cpu and process messages, in that
// order.
func (s Snapshot) Envelopes(hostname string) []Envelope {
	return []Envelope{
		{Type: s.CPU.MetricType(), Timestamp: s.Timestamp, Hostname: hostname, Data: s.CPU},
		{Type: s.Processes.MetricType(), Timestamp: s.Timestamp, Hostname: hostname, Data: s.Processes},
	}
}
