package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"symphony/internal/domain"
	l2_service "symphony/internal/service/l2"
	l3_service "symphony/internal/service/l3"
	"symphony/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type EvaluateRequest struct {
	Strategy  json.RawMessage `json:"strategy"`
	AsOf      string          `json:"asOf"`
	Precision *int            `json:"precision"`
	Trace     bool            `json:"trace"`
}

type EvaluateResponse struct {
	AsOf       string                     `json:"asOf"`
	Allocation domain.Allocation          `json:"allocation"`
	Trace      *l2_service.Trace          `json:"trace,omitempty"`
	Stats      l2_service.EvaluationStats `json:"stats"`
	Profile    *domain.Profile            `json:"profile"`
}

func (m ApiHandler) parseStrategy(raw json.RawMessage) (domain.Expression, int, error) {
	if len(raw) == 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("missing strategy")
	}
	tree, err := domain.ParseExpressionJson(raw)
	if err != nil {
		if errors.As(err, &domain.InvalidExpressionError{}) || errors.As(err, &domain.IndicatorDomainError{}) {
			return nil, http.StatusUnprocessableEntity, err
		}
		return nil, http.StatusBadRequest, err
	}
	return tree, 0, nil
}

func (m ApiHandler) precision(requested *int) (int, error) {
	if requested == nil {
		return m.DefaultPrecision, nil
	}
	if *requested < 0 || *requested > l3_service.MaxPrecision {
		return 0, fmt.Errorf("precision must be between 0 and %d, got %d", l3_service.MaxPrecision, *requested)
	}
	return *requested, nil
}

func (m ApiHandler) evaluate(c *gin.Context) {
	profile, endProfile := domain.NewProfile()
	ctx := domain.NewCtxWithProfile(c.Request.Context(), profile)

	var requestBody EvaluateRequest
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	tree, code, err := m.parseStrategy(requestBody.Strategy)
	if err != nil {
		returnErrorJsonCode(err, c, code)
		return
	}

	precision, err := m.precision(requestBody.Precision)
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	asOf := util.DateOnly(time.Now().UTC())
	if requestBody.AsOf != "" {
		asOf, err = util.ParseDate(requestBody.AsOf)
		if err != nil {
			returnErrorJsonCode(err, c, http.StatusBadRequest)
			return
		}
	}

	result, err := m.StrategyService.EvaluateStrategy(ctx, l3_service.EvaluateStrategyInput{
		Tree:      tree,
		AsOf:      asOf,
		Precision: precision,
		Trace:     requestBody.Trace,
	})
	if err != nil {
		returnErrorJson(err, c)
		return
	}
	endProfile()

	response := EvaluateResponse{
		AsOf:       asOf.Format(time.DateOnly),
		Allocation: result.Allocation,
		Stats:      result.Stats,
		Profile:    profile,
	}
	if requestBody.Trace {
		response.Trace = result.Trace
	}

	c.JSON(200, response)
}
