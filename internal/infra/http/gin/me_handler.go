package ginserver

import (
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"github.com/DanielNoblero/consultorios-app/internal/app/dto"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/reservations"
	"github.com/DanielNoblero/consultorios-app/internal/app/queries"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

type MeHTTP interface {
	Agenda(c *gin.Context)
	ListReservations(c *gin.Context)
	Debt(c *gin.Context)
}

type MeHandler struct {
	Queries queries.Bus
}

// Agenda is the day grid of one room, open to any signed in professional.
func (h MeHandler) Agenda(c *gin.Context) {
	if _, ok := requireCaller(c); !ok {
		return
	}
	day, err := calendar.ParseDay(c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	room, err := strconv.Atoi(c.Query("room"))
	if err != nil {
		badRequest(c, "room must be a number")
		return
	}
	result, err := queries.Ask[reservations.DayAgendaQuery, []dto.AgendaEntry](c.Request.Context(), h.Queries, reservations.DayAgendaQuery{Date: day, Room: room})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

func (h MeHandler) ListReservations(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	from, err := optionalDay(c.Query("from"))
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := optionalDay(c.Query("to"))
	if err != nil {
		writeError(c, err)
		return
	}
	q := reservations.OwnerBookingsQuery{ActorID: user.ID, From: from, To: to}
	result, err := queries.Ask[reservations.OwnerBookingsQuery, []dto.Booking](c.Request.Context(), h.Queries, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

func (h MeHandler) Debt(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	result, err := queries.Ask[reservations.DebtSummaryQuery, dto.Debt](c.Request.Context(), h.Queries, reservations.DebtSummaryQuery{ActorID: user.ID})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func optionalDay(raw string) (calendar.Day, error) {
	if raw == "" {
		return calendar.Day{}, nil
	}
	return calendar.ParseDay(raw)
}

var _ MeHTTP = MeHandler{}
