package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/cohort/internal/api/http/converter"
	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/internal/repository"
	"github.com/immxrtalbeast/cohort/internal/service"
)

// RoomController exposes read-only room inspection.
type RoomController struct {
	rooms service.RoomInspector
}

func NewRoomController(rooms service.RoomInspector) *RoomController {
	return &RoomController{rooms: rooms}
}

func (c *RoomController) ListRooms(ctx *gin.Context) {
	snaps, err := c.rooms.Rooms(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rooms := make([]*converter.RoomResponse, 0, len(snaps))
	for _, snap := range snaps {
		rooms = append(rooms, converter.RoomToApi(snap))
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	kind, err := domain.ParseRoomKind(ctx.Param("kind"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := c.rooms.Room(ctx.Request.Context(), domain.RoomKey{ID: ctx.Param("roomID"), Kind: kind})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(snap)})
}

func (c *RoomController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "stats": c.rooms.Stats()})
}
