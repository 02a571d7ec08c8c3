package http

import (
	"io/fs"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lobbychat/internal/config"
	"github.com/vovakirdan/lobbychat/internal/core"
	"github.com/vovakirdan/lobbychat/internal/store"
	"github.com/vovakirdan/lobbychat/web"
)

// NewServer builds the HTTP server serving the browser client, the REST API and /ws.
// The websocket endpoint sits on a plain ServeMux next to the gin router
// because gin's response writer refuses to hijack a connection.
func NewServer(hub *core.Hub, st store.MessageStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, logger, WSOptions{
		MaxMessageBytes:   cfg.MaxMessageBytes,
		ClientBuffer:      cfg.ClientBuffer,
		MessagesPerMinute: cfg.MessagesPerMinute,
	}))
	mux.Handle("/", NewRouter(hub, st, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires the page, static assets and REST routes onto a gin engine.
func NewRouter(hub *core.Hub, st store.MessageStore, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware())

	assets := web.Static()
	router.GET("/", indexHandler(assets, logger))
	router.StaticFS("/static", stdhttp.FS(assets))

	api := NewAPIHandlers(hub, st, logger)
	router.GET("/health", api.Health)
	router.GET("/api/hello", api.Hello)
	router.GET("/api/messages", api.ListMessages)
	router.DELETE("/api/clear", api.Clear)

	return router
}

func indexHandler(assets fs.FS, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := fs.ReadFile(assets, "index.html")
		if err != nil {
			logger.Error().Err(err).Msg("read embedded index")
			c.JSON(stdhttp.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		c.Data(stdhttp.StatusOK, "text/html; charset=utf-8", page)
	}
}
