package ginserver

import (
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/dto"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/reservations"
	"github.com/DanielNoblero/consultorios-app/internal/app/queries"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

type ReservationHTTP interface {
	Create(c *gin.Context)
	Cancel(c *gin.Context)
	AdminDelete(c *gin.Context)
	SetPaid(c *gin.Context)
	MarkMonth(c *gin.Context)
	ListBackups(c *gin.Context)
	Restore(c *gin.Context)
}

type ReservationHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
}

type createReservationRequest struct {
	Date       string `json:"date" binding:"required"`
	StartTime  string `json:"start_time" binding:"required"`
	EndTime    string `json:"end_time"`
	Room       int    `json:"room" binding:"required"`
	Recurrence string `json:"recurrence"`
	Count      int    `json:"count"`
}

func (h ReservationHandler) Create(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	day, err := calendar.ParseDay(req.Date)
	if err != nil {
		writeError(c, err)
		return
	}
	kind, err := domainbooking.ParseRecurrenceKind(req.Recurrence)
	if err != nil {
		writeError(c, err)
		return
	}
	cmd := reservations.CreateReservationCommand{
		ActorID:         user.ID,
		Date:            day,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Room:            req.Room,
		Recurrence:      domainbooking.Recurrence{Kind: kind, Count: req.Count},
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[reservations.CreateReservationCommand, reservations.CreateReservationResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if result.NothingToCreate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h ReservationHandler) Cancel(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	series, err := optionalBool(c.Query("series"))
	if err != nil {
		badRequest(c, "series must be a boolean")
		return
	}
	cmd := reservations.CancelReservationCommand{ActorID: user.ID, BookingID: c.Param("id"), Series: series}
	result, err := commands.Dispatch[reservations.CancelReservationCommand, *reservations.CancelResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReservationHandler) AdminDelete(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	cmd := reservations.AdminDeleteReservationCommand{ActorID: user.ID, BookingID: c.Param("id")}
	result, err := commands.Dispatch[reservations.AdminDeleteReservationCommand, *reservations.CancelResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type setPaidRequest struct {
	Paid *bool `json:"paid" binding:"required"`
}

func (h ReservationHandler) SetPaid(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd := reservations.SetPaidCommand{ActorID: user.ID, BookingID: c.Param("id"), Paid: *req.Paid}
	result, err := commands.Dispatch[reservations.SetPaidCommand, *reservations.SetPaidResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MarkMonth serves both /paid and /unpaid; the route decides which.
func (h ReservationHandler) MarkMonth(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	period, err := calendar.ParsePeriod(c.Param("period"))
	if err != nil {
		writeError(c, err)
		return
	}
	var paid bool
	switch c.Param("state") {
	case "paid":
		paid = true
	case "unpaid":
	default:
		badRequest(c, "state must be paid or unpaid")
		return
	}
	cmd := reservations.MarkMonthCommand{ActorID: user.ID, OwnerID: c.Param("id"), Period: period, Paid: paid}
	result, err := commands.Dispatch[reservations.MarkMonthCommand, *reservations.MarkMonthResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReservationHandler) ListBackups(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	includeRestored, err := optionalBool(c.Query("include_restored"))
	if err != nil {
		badRequest(c, "include_restored must be a boolean")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
	}
	q := reservations.ListBackupsQuery{ActorID: user.ID, OwnerID: c.Query("owner_id"), IncludeRestored: includeRestored, Limit: limit}
	result, err := queries.Ask[reservations.ListBackupsQuery, []dto.Backup](c.Request.Context(), h.Queries, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

func (h ReservationHandler) Restore(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	cmd := reservations.RestoreBackupCommand{ActorID: user.ID, BackupID: c.Param("id")}
	result, err := commands.Dispatch[reservations.RestoreBackupCommand, *reservations.RestoreResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func optionalBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

var _ ReservationHTTP = ReservationHandler{}
