package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"symphony/internal/domain"
	"symphony/internal/logger"
	l3_service "symphony/internal/service/l3"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ApiHandler struct {
	// Db is nil unless prices come from postgres
	Db               *sql.DB
	StrategyService  l3_service.StrategyService
	JwtDecodeToken   string
	DefaultPrecision int
}

func (m ApiHandler) InitializeRouterEngine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(m.logRequestMiddlware)

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(200, map[string]string{"message": "welcome to symphony"})
	})

	authorized := router.Group("/")
	authorized.Use(m.authMiddleware)
	authorized.POST("/evaluate", m.evaluate)
	authorized.POST("/evaluateHistory", m.evaluateHistory)

	return router
}

func (m ApiHandler) StartApi(port int) error {
	return m.InitializeRouterEngine().Run(fmt.Sprintf(":%d", port))
}

func returnErrorJson(err error, c *gin.Context) {
	returnErrorJsonCode(err, c, statusForError(err))
}

func returnErrorJsonCode(err error, c *gin.Context, code int) {
	log := logger.FromContext(c.Request.Context())
	if code >= 500 {
		log.Error(err)
	} else {
		log.Warn(err)
	}
	c.AbortWithStatusJSON(code, gin.H{
		"error": err.Error(),
	})
}

// statusForError reports strategy and data problems as 422 so clients can
// tell them apart from server failures.
func statusForError(err error) int {
	switch {
	case errors.As(err, &domain.InsufficientHistoryError{}),
		errors.As(err, &domain.EmptySelectionError{}),
		errors.As(err, &domain.WeightSumMismatchError{}),
		errors.As(err, &domain.IndicatorDomainError{}),
		errors.As(err, &domain.InvalidExpressionError{}):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// logRequestMiddlware gives every request an id and a logger carrying it,
// then logs the outcome.
func (m ApiHandler) logRequestMiddlware(c *gin.Context) {
	requestID := uuid.New()
	c.Set("requestID", requestID.String())
	c.Header("X-Request-ID", requestID.String())

	log := logger.FromContext(c.Request.Context()).With(
		"requestID", requestID.String(),
		"method", c.Request.Method,
		"route", c.Request.URL.Path,
	)
	c.Request = c.Request.WithContext(logger.NewContext(c.Request.Context(), log))

	start := time.Now().UTC()
	c.Next()

	log.Infow("handled request",
		"status", c.Writer.Status(),
		"durationMs", time.Since(start).Milliseconds(),
		"ip", c.ClientIP(),
	)
}
