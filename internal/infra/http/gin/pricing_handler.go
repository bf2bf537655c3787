package ginserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/dto"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/rates"
	"github.com/DanielNoblero/consultorios-app/internal/app/queries"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
)

type PricingHTTP interface {
	Get(c *gin.Context)
	Update(c *gin.Context)
	Notice(c *gin.Context)
	Acknowledge(c *gin.Context)
}

type PricingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
}

func (h PricingHandler) Get(c *gin.Context) {
	result, err := queries.Ask[rates.GetPricingQuery, dto.PricingConfig](c.Request.Context(), h.Queries, rates.GetPricingQuery{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type updatePricingRequest struct {
	BaseRate      int64  `json:"base_rate" binding:"required"`
	DiscountRate  int64  `json:"discount_rate" binding:"required"`
	EffectiveDate string `json:"effective_date"`
}

func (h PricingHandler) Update(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	var req updatePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var effective calendar.Day
	if req.EffectiveDate != "" {
		d, err := calendar.ParseDay(req.EffectiveDate)
		if err != nil {
			writeError(c, err)
			return
		}
		effective = d
	}
	cmd := rates.UpdatePricingConfigCommand{
		ActorID:       user.ID,
		BaseRate:      money.Amount(req.BaseRate),
		DiscountRate:  money.Amount(req.DiscountRate),
		EffectiveDate: effective,
	}
	result, err := commands.Dispatch[rates.UpdatePricingConfigCommand, *rates.UpdatePricingConfigResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PricingHandler) Notice(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	result, err := queries.Ask[rates.PriceNoticeQuery, rates.PriceNotice](c.Request.Context(), h.Queries, rates.PriceNoticeQuery{ActorID: user.ID})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PricingHandler) Acknowledge(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	result, err := commands.Dispatch[rates.AcknowledgePriceCommand, *rates.AcknowledgePriceResult](c.Request.Context(), h.Commands, rates.AcknowledgePriceCommand{ActorID: user.ID})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ PricingHTTP = PricingHandler{}
