package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"AmbientFM/core/audio"
	"AmbientFM/logger"

	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": audio.Message(err)})
}

// statusFor 状态错误返回 400，其他错误返回 500
func statusFor(err error) int {
	if errors.Is(err, audio.ErrState) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.player.Status())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	lane, err := s.player.Lane(slug)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err := s.player.Toggle(r.Context(), slug); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, lane.Status())
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	lane, err := s.player.Lane(slug)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var req struct {
		Volume *int `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if *req.Volume < 0 || *req.Volume > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Volume must be between 0 and 100"})
		return
	}
	if err := s.player.SetVolume(slug, *req.Volume); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, lane.Status())
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	// 客户端断开不应打断进行中的淡入淡出
	if err := s.player.Shuffle(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.player.Status())
}

// handleRetry 在后台重新初始化，立即返回 202
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.initTimeout)
		defer cancel()
		if err := s.player.RetryInitialization(ctx); err != nil {
			logger.Warn("重新初始化失败", logger.ErrorField(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Initialization started"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}
	client := s.hub.NewClient(conn)

	// 先发送一次完整状态
	if data, err := encodeStatus(s.player.Status()); err == nil {
		client.Send <- data
	}
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(context.Background())
}
