package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"paper-gen-api/internal/application/events"
	"paper-gen-api/internal/application/lifecycle"
	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/interfaces/http/dto"
	"paper-gen-api/pkg/logger"
)

// EventHandler 生成进度事件流（SSE）
type EventHandler struct {
	broker    *events.Broker
	svc       *lifecycle.Service
	heartbeat time.Duration
}

// NewEventHandler 创建事件流处理器
func NewEventHandler(broker *events.Broker, svc *lifecycle.Service, heartbeat time.Duration) *EventHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventHandler{broker: broker, svc: svc, heartbeat: heartbeat}
}

// StreamEvents 订阅生成的进度事件
// 首帧为当前状态快照；生成进入终态后发送最后一帧并结束。
// @Summary 生成进度事件流
// @Tags Generations
// @Produce text/event-stream
// @Param id path string true "生成 ID"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generations/{id}/events [get]
func (h *EventHandler) StreamEvents(c *gin.Context) {
	id := dto.BindGenerationID(c)
	ctx := logger.WithContext(c.Request.Context(), logger.GenerationIDKey, id)

	sub, err := h.broker.Subscribe(ctx, id, func(ctx context.Context) (entity.GenerationEvent, error) {
		return h.svc.Snapshot(ctx, id)
	})
	if err != nil {
		respondError(c, err, "failed to subscribe to generation events")
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				if sub.Dropped() {
					logger.Warn(ctx, "event subscriber disconnected for falling behind")
					_, _ = fmt.Fprint(w, "event: dropped\ndata: {}\n\n")
				}
				return false
			}
			if err := writeEvent(w, evt); err != nil {
				return false
			}
			return !evt.Status.IsTerminal()
		case <-ticker.C:
			_, err := fmt.Fprint(w, ": heartbeat\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}

func writeEvent(w io.Writer, evt entity.GenerationEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: generation\ndata: %s\n\n", data)
	return err
}
