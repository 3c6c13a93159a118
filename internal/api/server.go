// Package api exposes the HTTP surface of chathub: health and presence
// endpoints, the websocket handshake, and the authenticated message and
// user-directory API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chathub/internal/router"
	"chathub/pkg/interfaces"
	"chathub/pkg/middleware"
	"chathub/pkg/types"
)

// Store is the persistence the API reads and writes.
type Store interface {
	HealthCheck(ctx context.Context) error
	GetMessage(ctx context.Context, messageID string) (*types.Message, error)
	UpsertUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, userID string) (*types.User, error)
	GetBlockList(ctx context.Context, userID string) ([]string, error)
	BlockUser(ctx context.Context, blockerID, blockedID string) error
	UnblockUser(ctx context.Context, blockerID, blockedID string) error
}

// Hub is the live session state the API reports on.
type Hub interface {
	IsOnline(userID string) bool
	OnlineUsers() []string
	GetStats() map[string]int
}

// MessageRouter ingests new messages.
type MessageRouter interface {
	RouteMessage(ctx context.Context, message *types.Message) error
}

// ServerConfig configures authentication and CORS.
type ServerConfig struct {
	JWTSecret      string // empty disables the authenticated routes
	Issuer         string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Server struct {
	store     Store
	hub       Hub
	router    MessageRouter
	websocket http.HandlerFunc
	config    ServerConfig
	engine    *gin.Engine
}

// NewServer builds the gin engine. ws serves the websocket handshake.
func NewServer(config ServerConfig, store Store, hub Hub, messageRouter MessageRouter, ws http.HandlerFunc) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Second
	}

	s := &Server{
		store:     store,
		hub:       hub,
		router:    messageRouter,
		websocket: ws,
		config:    config,
		engine:    gin.New(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(gin.Logger(), middleware.Recovery(), middleware.CORS(s.config.AllowedOrigins))

	s.engine.GET("/health", s.healthCheck)
	s.engine.GET("/api/presence", s.presence)
	s.engine.GET("/api/presence/:id", s.userPresence)
	if s.websocket != nil {
		s.engine.GET("/ws", gin.WrapF(s.websocket))
	}

	if s.config.JWTSecret == "" {
		log.Println("No JWT secret configured: message and user API disabled")
		return
	}

	authed := s.engine.Group("/api", middleware.JWTAuth(s.config.JWTSecret, s.config.Issuer))
	authed.POST("/messages", s.createMessage)
	authed.GET("/messages/:id", s.getMessage)
	authed.PUT("/users/me", s.upsertMe)
	authed.GET("/users/me", s.getMe)
	authed.POST("/users/me/blocks/:id", s.block)
	authed.DELETE("/users/me/blocks/:id", s.unblock)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Engine exposes the gin engine.
func (s *Server) Engine() *gin.Engine { return s.engine }

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type PresenceResponse struct {
	OnlineUsers []string `json:"onlineUsers"`
}

type UserPresenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CreateMessageRequest is the body of POST /api/messages. The sender is the
// authenticated caller.
type CreateMessageRequest struct {
	ReceiverID    *string     `json:"receiverId"`
	GroupID       *string     `json:"groupId"`
	Text          string      `json:"text"`
	Image         string      `json:"image"`
	VoiceMessage  string      `json:"voiceMessage"`
	VoiceDuration float64     `json:"voiceDuration"`
	VoiceWaveform []float64   `json:"voiceWaveform"`
	File          *types.File `json:"file"`
}

type UpsertUserRequest struct {
	FullName string `json:"fullName"`
}

type BlockListResponse struct {
	Blocked []string `json:"blocked"`
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	status, dbStatus, code := "healthy", "healthy", http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		status, dbStatus, code = "unhealthy", fmt.Sprintf("error: %v", err), http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.hub.GetStats(),
	})
}

func (s *Server) presence(c *gin.Context) {
	online := s.hub.OnlineUsers()
	if online == nil {
		online = []string{}
	}
	c.JSON(http.StatusOK, PresenceResponse{OnlineUsers: online})
}

func (s *Server) userPresence(c *gin.Context) {
	userID := c.Param("id")
	if !types.IsValidUserID(userID) {
		s.sendError(c, types.ErrInvalidUserID.Error(), http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, UserPresenceResponse{UserID: userID, Online: s.hub.IsOnline(userID)})
}

func (s *Server) createMessage(c *gin.Context) {
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, "Invalid JSON", http.StatusBadRequest)
		return
	}

	message := &types.Message{
		SenderID:      middleware.GetUserID(c),
		ReceiverID:    req.ReceiverID,
		GroupID:       req.GroupID,
		Text:          req.Text,
		Image:         req.Image,
		VoiceMessage:  req.VoiceMessage,
		VoiceDuration: req.VoiceDuration,
		VoiceWaveform: req.VoiceWaveform,
		File:          req.File,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	if receiver := req.ReceiverID; receiver != nil && types.IsValidUserID(*receiver) {
		if _, err := s.store.GetUser(ctx, *receiver); err != nil {
			if errors.Is(err, interfaces.ErrUserNotFound) {
				s.sendError(c, "Receiver not found", http.StatusNotFound)
				return
			}
			log.Printf("Failed to look up receiver %s: %v", *receiver, err)
			s.sendError(c, "Failed to create message", http.StatusInternalServerError)
			return
		}
	}

	err := s.router.RouteMessage(ctx, message)
	switch {
	case err == nil, errors.Is(err, router.ErrDispatchFailed):
		c.JSON(http.StatusCreated, message)
	case errors.Is(err, router.ErrRateLimitExceeded):
		s.sendError(c, err.Error(), http.StatusTooManyRequests)
	case isValidationError(err):
		s.sendError(c, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Failed to create message for %s: %v", message.SenderID, err)
		s.sendError(c, "Failed to create message", http.StatusInternalServerError)
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		types.ErrInvalidUserID, types.ErrInvalidGroupID, types.ErrMissingTarget,
		types.ErrEmptyMessage, types.ErrContentTooLarge, types.ErrInvalidDuration,
		types.ErrInvalidFile, types.ErrWaveformTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) getMessage(c *gin.Context) {
	message, err := s.store.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrMessageNotFound) {
			s.sendError(c, "Message not found", http.StatusNotFound)
			return
		}
		s.sendError(c, "Failed to get message", http.StatusInternalServerError)
		return
	}

	caller := middleware.GetUserID(c)
	if !message.IsGroup() && message.SenderID != caller && (message.ReceiverID == nil || *message.ReceiverID != caller) {
		s.sendError(c, "Message not found", http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, message)
}

func (s *Server) upsertMe(c *gin.Context) {
	var req UpsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, "Invalid JSON", http.StatusBadRequest)
		return
	}

	userID := middleware.GetUserID(c)
	if !types.IsValidUserID(userID) {
		s.sendError(c, types.ErrInvalidUserID.Error(), http.StatusBadRequest)
		return
	}

	user := &types.User{ID: userID, FullName: strings.TrimSpace(req.FullName)}
	if err := s.store.UpsertUser(c.Request.Context(), user); err != nil {
		log.Printf("Failed to upsert user %s: %v", userID, err)
		s.sendError(c, "Failed to save user", http.StatusInternalServerError)
		return
	}

	s.getMe(c)
}

func (s *Server) getMe(c *gin.Context) {
	user, err := s.store.GetUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(c, "User not found", http.StatusNotFound)
			return
		}
		s.sendError(c, "Failed to get user", http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) block(c *gin.Context) {
	s.changeBlock(c, s.store.BlockUser)
}

func (s *Server) unblock(c *gin.Context) {
	s.changeBlock(c, s.store.UnblockUser)
}

func (s *Server) changeBlock(c *gin.Context, apply func(ctx context.Context, blockerID, blockedID string) error) {
	caller := middleware.GetUserID(c)
	target := c.Param("id")
	if !types.IsValidUserID(target) || target == caller {
		s.sendError(c, "Invalid user to block", http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	if err := apply(ctx, caller, target); err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(c, "User not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to update block list of %s: %v", caller, err)
		s.sendError(c, "Failed to update block list", http.StatusInternalServerError)
		return
	}

	blocked, err := s.store.GetBlockList(ctx, caller)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(c, "User not found", http.StatusNotFound)
			return
		}
		s.sendError(c, "Failed to read block list", http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, BlockListResponse{Blocked: blocked})
}

func (s *Server) sendError(c *gin.Context, message string, code int) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
