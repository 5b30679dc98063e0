package hub

import (
	"Deskwire/internal/model"
	"time"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connectionStats := ms.getConnectionStats()
	roomStats := ms.getRoomStats()
	clients := ms.getClientList()

	// Determine overall health status
	status := "healthy"
	if connectionStats.TotalConnections == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Rooms:       roomStats,
		Clients:     clients,
	}
}

// getConnectionStats returns connection statistics
func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	ms.hub.sessionsMu.RLock()
	defer ms.hub.sessionsMu.RUnlock()

	stats := model.ConnectionStats{
		TotalIdentities: len(ms.hub.sessions),
	}
	for _, clients := range ms.hub.sessions {
		stats.TotalConnections += len(clients)
	}
	return stats
}

// getRoomStats returns ticket room statistics
func (ms *MonitorService) getRoomStats() model.RoomStats {
	stats := model.RoomStats{
		RoomDetails: make([]model.RoomInfo, 0),
	}

	// Iterate through all shards to collect room info
	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for _, room := range bucket.rooms {
			room.mu.RLock()

			memberIDs := make([]string, 0, len(room.Members))
			for _, member := range room.Members {
				memberIDs = append(memberIDs, member.identity.UserID)
			}

			roomInfo := model.RoomInfo{
				TicketID:     room.TicketID,
				TotalMembers: len(room.Members),
				MemberIDs:    memberIDs,
			}

			room.mu.RUnlock()

			stats.RoomDetails = append(stats.RoomDetails, roomInfo)
			stats.TotalRooms++
		}
		bucket.RUnlock()
	}

	return stats
}

// getClientList returns list of all connected clients
func (ms *MonitorService) getClientList() []model.ClientInfo {
	clients := ms.hub.allClients()

	infos := make([]model.ClientInfo, 0, len(clients))
	for _, client := range clients {
		infos = append(infos, model.ClientInfo{
			ClientID:   client.ID,
			UserID:     client.identity.UserID,
			Role:       client.identity.Role,
			Rooms:      client.Rooms(),
			LastSeenAt: client.LastSeen().Format(time.RFC3339),
		})
	}

	return infos
}
