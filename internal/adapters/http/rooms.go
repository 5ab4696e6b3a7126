package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

type peerRequest struct {
	PeerID domain.PeerID `json:"peerId" binding:"required"`
	Name   string        `json:"name"`
}

type screenShareRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

var errRoomNotFound = gin.H{"error": "Room not found"}

// roomHandlers serves the mesh admission API.
type roomHandlers struct {
	rooms core.MeshRooms
}

// bindPeer binds and validates a body carrying a peer id. It writes the 400
// itself and reports whether the handler may continue.
func bindPeer(c *gin.Context) (peerRequest, bool) {
	var req peerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid peerId"})
		return req, false
	}
	if err := domain.ValidatePeerID(req.PeerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	return req, true
}

func (h roomHandlers) create(c *gin.Context) {
	code, err := h.rooms.CreateRoom()
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

func (h roomHandlers) get(c *gin.Context) {
	snap, ok := h.rooms.GetRoom(c.Param("code"))
	if !ok {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h roomHandlers) participants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"participants": h.rooms.Participants(c.Param("code"))})
}

func (h roomHandlers) host(c *gin.Context) {
	req, ok := bindPeer(c)
	if !ok {
		return
	}
	if !h.rooms.SetHost(c.Param("code"), req.PeerID, req.Name) {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h roomHandlers) request(c *gin.Context) {
	req, ok := bindPeer(c)
	if !ok {
		return
	}
	if !h.rooms.RequestJoin(c.Param("code"), req.PeerID, req.Name) {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h roomHandlers) pending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": h.rooms.Pending(c.Param("code"))})
}

func (h roomHandlers) approve(c *gin.Context) {
	req, ok := bindPeer(c)
	if !ok {
		return
	}
	peers := h.rooms.ApproveJoin(c.Param("code"), req.PeerID)
	if peers == nil {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers})
}

func (h roomHandlers) reject(c *gin.Context) {
	req, ok := bindPeer(c)
	if !ok {
		return
	}
	h.rooms.RejectJoin(c.Param("code"), req.PeerID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h roomHandlers) admission(c *gin.Context) {
	state, ok := h.rooms.AdmissionState(c.Param("code"), domain.PeerID(c.Param("peerId")))
	if !ok {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h roomHandlers) leave(c *gin.Context) {
	req, ok := bindPeer(c)
	if !ok {
		return
	}
	h.rooms.LeaveRoom(c.Param("code"), req.PeerID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h roomHandlers) screenShare(c *gin.Context) {
	var req screenShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid enabled"})
		return
	}
	if !h.rooms.SetScreenShare(c.Param("code"), *req.Enabled) {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "screenShareEnabled": *req.Enabled})
}

func (h roomHandlers) allowRecording(c *gin.Context) {
	req, ok := bindPeer(c)
	if !ok {
		return
	}
	if !h.rooms.AllowRecording(c.Param("code"), req.PeerID) {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h roomHandlers) disallowRecording(c *gin.Context) {
	req, ok := bindPeer(c)
	if !ok {
		return
	}
	if !h.rooms.DisallowRecording(c.Param("code"), req.PeerID) {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h roomHandlers) settings(c *gin.Context) {
	s, ok := h.rooms.Settings(c.Param("code"))
	if !ok {
		c.JSON(http.StatusNotFound, errRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, s)
}

func capabilities(fwd core.Forwarding) gin.HandlerFunc {
	return func(c *gin.Context) {
		caps, ok := fwd.RtpCapabilities(domain.NormalizeCode(c.Param("code")))
		if !ok {
			c.JSON(http.StatusNotFound, errRoomNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rtpCapabilities": caps})
	}
}
