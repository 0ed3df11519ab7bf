package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"acu-chatbot-go/internal/middleware"
	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/internal/service"
	"acu-chatbot-go/internal/stream"
	"acu-chatbot-go/pkg/log"
	"acu-chatbot-go/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsReadLimit = 64 << 10

// ChatHandler 负责处理聊天请求（原子响应、SSE 与 WebSocket）。
type ChatHandler struct {
	chatService service.ChatService
	limiter     *ratelimit.Limiter
	upgrader    websocket.Upgrader
}

// NewChatHandler 创建一个新的 ChatHandler。
// limiter 用于 WebSocket 连接内的每条消息；HTTP 接口由中间件限流。
func NewChatHandler(chatService service.ChatService, limiter *ratelimit.Limiter, allowedOrigins []string) *ChatHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &ChatHandler{
		chatService: chatService,
		limiter:     limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Chat 处理 POST /api/chat，返回完整回答。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Chat: Invalid request payload, error: %v", err)
		badRequest(c, "invalid request body")
		return
	}
	reply, err := h.chatService.Chat(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// Stream 处理 POST /api/chat/stream，以 SSE 逐段下发回答。
func (h *ChatHandler) Stream(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Stream: Invalid request payload, error: %v", err)
		badRequest(c, "invalid request body")
		return
	}
	// 校验必须在写入 SSE 响应头之前完成
	if err := h.chatService.Validate(&req); err != nil {
		writeError(c, err)
		return
	}

	sink, err := stream.NewSSESink(c.Writer)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.chatService.ChatStream(c.Request.Context(), req, sink); err != nil {
		sendStreamError(sink, err)
	}
}

func sendStreamError(sink stream.Sink, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	_, kind, message := errorInfo(err)
	log.Warnf("流式响应失败: %v", err)
	_ = sink.Send(stream.Event{Done: true, Kind: string(kind), Message: message})
}

// WebSocket 处理 GET /api/chat/ws。每个入站文本帧是一个聊天请求体，
// 同一连接内的请求依次处理。
func (h *ChatHandler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sink := stream.NewWSSink(conn)
	clientIP := c.ClientIP()
	// 帧内未指定 session_id 时，整个连接共用一个会话
	connSession := c.GetHeader(middleware.SessionIDHeader)
	if connSession == "" {
		connSession = uuid.NewString()
	}
	log.Infof("WebSocket 连接已建立, ip=%s session=%s", clientIP, connSession)

	// 读取放在独立的 goroutine 中，回答进行中客户端断开也能立即取消 ctx
	frames := make(chan []byte)
	go func() {
		defer close(frames)
		defer cancel()
		for {
			msgType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("从 WebSocket 读取消息失败: %v", err)
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			select {
			case frames <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	for message := range frames {
		var req service.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			sendStreamError(sink, model.NewAppError(model.KindInvalidInput, "invalid request body"))
			continue
		}
		if req.SessionID == "" {
			req.SessionID = connSession
		}

		if ok, retry := h.limiter.Admit(middleware.RateLimitKey(req.SessionID, clientIP)); !ok {
			_ = sink.Send(stream.Event{
				Done:    true,
				Kind:    string(model.KindRateLimited),
				Message: fmt.Sprintf("Çok fazla istek gönderdiniz. Lütfen %d saniye sonra tekrar deneyin.", int(math.Ceil(retry.Seconds()))),
			})
			continue
		}

		if err := h.chatService.ChatStream(ctx, req, sink); err != nil {
			sendStreamError(sink, err)
		}
	}
}
