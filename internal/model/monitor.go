package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"` // "healthy" or "idle"
	Connections ConnectionStats `json:"connections"`
	Rooms       RoomStats       `json:"rooms"`
	Clients     []ClientInfo    `json:"clients"`
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnections int `json:"totalConnections"` // Live socket connections
	TotalIdentities  int `json:"totalIdentities"`  // Distinct online users
}

// RoomStats holds ticket room statistics
type RoomStats struct {
	TotalRooms  int        `json:"totalRooms"`
	RoomDetails []RoomInfo `json:"roomDetails"`
}

// RoomInfo contains information about a single ticket room
type RoomInfo struct {
	TicketID     string   `json:"ticketId"`
	TotalMembers int      `json:"totalMembers"` // Connections currently joined
	MemberIDs    []string `json:"memberIds"`    // User IDs of joined connections
}

// ClientInfo contains information about a connected client
type ClientInfo struct {
	ClientID   string   `json:"clientId"`
	UserID     string   `json:"userId"`
	Role       string   `json:"role"`
	Rooms      []string `json:"rooms"`
	LastSeenAt string   `json:"lastSeenAt"` // ISO timestamp of last inbound frame
}
