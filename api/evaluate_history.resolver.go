package api

import (
	"encoding/json"
	"net/http"
	"symphony/internal/domain"
	l3_service "symphony/internal/service/l3"
	"symphony/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type EvaluateHistoryRequest struct {
	Strategy             json.RawMessage `json:"strategy"`
	Start                string          `json:"start"`
	End                  string          `json:"end"`
	SamplingIntervalUnit string          `json:"samplingIntervalUnit"`
	Precision            *int            `json:"precision"`
}

type AllocationOnDayResponse struct {
	Date       string            `json:"date"`
	Allocation domain.Allocation `json:"allocation,omitempty"`
	Error      *string           `json:"error,omitempty"`
}

type EvaluateHistoryResponse struct {
	Allocations []AllocationOnDayResponse `json:"allocations"`
	NumErrors   int                       `json:"numErrors"`
	Profile     *domain.Profile           `json:"profile"`
}

func (m ApiHandler) evaluateHistory(c *gin.Context) {
	profile, endProfile := domain.NewProfile()
	ctx := domain.NewCtxWithProfile(c.Request.Context(), profile)

	var requestBody EvaluateHistoryRequest
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

	start, err := util.ParseDate(requestBody.Start)
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}
	end, err := util.ParseDate(requestBody.End)
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}
	interval, err := util.NewSamplingInterval(requestBody.SamplingIntervalUnit)
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	dates, err := m.StrategyService.ListEvaluationDates(ctx, l3_service.ListEvaluationDatesInput{
		Start:    start,
		End:      end,
		Interval: interval,
	})
	if err != nil {
		returnErrorJson(err, c)
		return
	}

	results, err := m.StrategyService.EvaluateStrategyOnDates(ctx, l3_service.EvaluateStrategyOnDatesInput{
		Tree:      tree,
		Dates:     dates,
		Precision: precision,
	})
	if err != nil {
		returnErrorJson(err, c)
		return
	}
	endProfile()

	response := EvaluateHistoryResponse{
		Allocations: make([]AllocationOnDayResponse, 0, len(results)),
		Profile:     profile,
	}
	for _, day := range results {
		out := AllocationOnDayResponse{
			Date:       day.Date.Format(time.DateOnly),
			Allocation: day.Allocation,
		}
		if day.Err != nil {
			msg := day.Err.Error()
			out.Error = &msg
			response.NumErrors++
		}
		response.Allocations = append(response.Allocations, out)
	}

	c.JSON(200, response)
}
