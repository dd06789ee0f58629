package logging

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	middlewares "github.com/mediadl/mediadl/server/middleware"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func webSocket(logger *ObservableLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("failed to upgrade log connection", slog.Any("err", err))
			return
		}
		defer c.Close()

		lines, unsubscribe := logger.Subscribe()
		defer unsubscribe()

		// detect client disconnection
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := c.NextReader(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case line := <-lines:
				if err := c.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
					return
				}
			}
		}
	}
}

func ApplyRouter(logger *ObservableLogger) func(chi.Router) {
	return func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)
		r.Get("/ws", webSocket(logger))
	}
}
