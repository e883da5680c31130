package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/services"
	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// JourneySnapshotEvent is the first frame of every stream: the full page.
const JourneySnapshotEvent = "journeys:snapshot"

// JourneyHandlers serves the live journey list, timelines and the change stream.
type JourneyHandlers struct {
	journeyList     *services.JourneyList
	timelineService *services.TimelineService
	broadcaster     *messaging.SSEBroadcaster
	pageSize        int
	heartbeat       time.Duration
	logger          *logging.ChanneledLogger
}

// NewJourneyHandlers creates journey handlers with injected dependencies
func NewJourneyHandlers(
	journeyList *services.JourneyList,
	timelineService *services.TimelineService,
	broadcaster *messaging.SSEBroadcaster,
	pageSize int,
	heartbeat time.Duration,
	logger *logging.ChanneledLogger,
) *JourneyHandlers {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &JourneyHandlers{
		journeyList:     journeyList,
		timelineService: timelineService,
		broadcaster:     broadcaster,
		pageSize:        pageSize,
		heartbeat:       heartbeat,
		logger:          logger,
	}
}

// ListJourneys switches the live list to the requested filter and returns the
// freshly fetched page.
func (h *JourneyHandlers) ListJourneys(c *gin.Context) {
	q := journey.Query{
		Status: c.Query("status"),
		SortBy: c.Query("sortBy"),
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  queryInt(c, "limit", h.pageSize),
		Offset: queryInt(c, "offset", 0),
	}
	if q.Limit == 0 {
		q.Limit = h.pageSize
	}

	view, err := h.journeyList.SetQuery(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, logging.ChannelJourneys, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetTimeline returns a journey's attempts and discounts with the advisory
// next step.
func (h *JourneyHandlers) GetTimeline(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "journey id is required"})
		return
	}

	view, err := h.timelineService.Timeline(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, logging.ChannelJourneys, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// StreamJourneys streams list changes over SSE. The first frame carries the
// current page so a client never has to race a separate list request.
func (h *JourneyHandlers) StreamJourneys(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	clientID, messages := h.broadcaster.AddClient()
	defer h.broadcaster.RemoveClient(clientID)
	opened := time.Now()

	initial, err := messaging.FormatMessage(JourneySnapshotEvent, h.journeyList.View())
	if err != nil {
		respondError(c, h.logger, logging.ChannelSSE, err)
		return
	}
	c.Status(http.StatusOK)
	fmt.Fprint(c.Writer, initial)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-messages:
			if !ok {
				return false
			}
			fmt.Fprint(w, message)
			return true
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.logger.WithContext(logging.ChannelSSE, c.Request.Context()).Debug("Journey stream closed",
		"clientId", clientID, "duration", time.Since(opened))
}
