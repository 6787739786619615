package ipc

import (
	"github.com/anthropic/dirwatch/internal/store"
)

// Commands understood by the server.
const (
	CmdPing   = "ping"
	CmdStatus = "status"
	CmdRecent = "recent"
	CmdStop   = "stop"
)

// Request is a JSON message sent from client to server.
type Request struct {
	Command string            `json:"command"`
	Args    map[string]string `json:"args,omitempty"`
}

// Response is a JSON message sent from server to client.
type Response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// WatchStatus describes one registered watchpoint.
type WatchStatus struct {
	ID    int    `json:"id"`
	Path  string `json:"path"`
	Flags string `json:"flags"`
}

// StatusData is returned by the "status" command.
type StatusData struct {
	Uptime      string        `json:"uptime"`
	RunID       string        `json:"run_id"`
	Watches     []WatchStatus `json:"watches"`
	Pumps       uint64        `json:"pumps"`
	Delivered   uint64        `json:"delivered"`
	Hidden      uint64        `json:"hidden"`
	Duplicates  uint64        `json:"duplicates"`
	Unreadable  uint64        `json:"unreadable"`
	EventsCount int64         `json:"events_count"`
	DBSizeBytes int64         `json:"db_size_bytes"`
}

// RecentData is returned by the "recent" command.
type RecentData struct {
	Events []store.EventRecord `json:"events"`
}
