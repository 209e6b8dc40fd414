package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/metrics"
	redisrepo "github.com/kirinyoku/airbook-go/internal/repository/redis"
	"github.com/kirinyoku/airbook-go/internal/service"
	"github.com/kirinyoku/airbook-go/internal/service/admin"
	"github.com/kirinyoku/airbook-go/internal/service/booking"
	"github.com/kirinyoku/airbook-go/internal/service/search"
)

// Options carries the optional pieces of the HTTP layer. Idempotency and
// Metrics may be nil.
type Options struct {
	Idempotency *redisrepo.IdempotencyStore
	Metrics     *metrics.Metrics
	JWTSecret   string
	AdminToken  string
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS(), MetricsMiddleware(opts.Metrics))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	api := r.Group("/api/v1")

	api.GET("/flights/search", handleSearchFlights(svcs))
	api.GET("/flights", handleListFlights(svcs))
	api.GET("/flights/:id", handleGetFlight(svcs))

	orders := api.Group("/orders", AuthMiddleware(opts.JWTSecret))
	{
		orders.POST("", handleCreateOrder(svcs, opts.Idempotency))
		orders.GET("", handleListOrders(svcs))
		orders.GET("/summary", handleOrderSummary(svcs))
		orders.GET("/:id", handleGetOrder(svcs))
		orders.PUT("/:id/pay", handlePayOrder(svcs))
		orders.POST("/:id/cancel", handleCancelOrder(svcs))
		orders.PUT("/:id/passengers/:pid/seat", handleSelectSeat(svcs))
		orders.POST("/:id/check-in", handleCheckIn(svcs))
		orders.GET("/:id/boarding-pass", handleBoardingPass(svcs))
	}

	adm := api.Group("/admin", AdminMiddleware(opts.AdminToken))
	{
		adm.POST("/routes", handleCreateRoute(svcs))
		adm.POST("/aircraft", handleCreateAircraft(svcs))
		adm.POST("/flights", handleCreateFlight(svcs))
		adm.PUT("/flights/:id/cabins/:class/price", handleSetCabinPrice(svcs))
	}

	return r
}

// @Summary  Search flights
// @Param    from        query  string  true   "Departure city"
// @Param    to          query  string  true   "Arrival city"
// @Param    date        query  string  true   "Departure day, YYYY-MM-DD"
// @Param    class       query  string  false  "economy, business or first"
// @Param    passengers  query  int     false  "Seats needed in class"
// @Success  200  {array}   domain.Flight
// @Failure  400  {object}  ErrorResponse
// @Router   /api/v1/flights/search [get]
func handleSearchFlights(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		passengers := 0
		if s := c.Query("passengers"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				badRequest(c, "invalid passengers")
				return
			}
			passengers = n
		}

		flights, err := svcs.Search.Search(c.Request.Context(), search.Query{
			From:       c.Query("from"),
			To:         c.Query("to"),
			Date:       c.Query("date"),
			Class:      c.Query("class"),
			Passengers: passengers,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, flights, "public, max-age=15", true)
	}
}

// @Summary  List flights
// @Param    limit   query  int  false  "page size"
// @Param    offset  query  int  false  "offset"
// @Success  200  {array}  domain.Flight
// @Router   /api/v1/flights [get]
func handleListFlights(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 0)
		offset := parseIntDefault(c.Query("offset"), 0)

		flights, err := svcs.Search.ListFlights(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, flights, "public, max-age=15", true)
	}
}

// @Summary  Get flight
// @Param    id  path  int  true  "Flight ID"
// @Success  200  {object}  domain.Flight
// @Failure  404  {object}  ErrorResponse
// @Router   /api/v1/flights/{id} [get]
func handleGetFlight(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		f, err := svcs.Search.GetFlight(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, f, "public, max-age=30", true)
	}
}

// @Summary  Create order (idempotent)
// @Param    req  body  CreateOrderRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  domain.OrderView
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse  "flight not found"
// @Failure  409  {object}  ErrorResponse  "seats unavailable / idem in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Router   /api/v1/orders [post]
func handleCreateOrder(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUser(c)

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemOrder(userID, idemKey)

			if replayIdempotent(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayIdempotent(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		view, err := svcs.Booking.CreateOrder(c.Request.Context(), req.input(userID))
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			b, _ := json.Marshal(view)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, b)
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, view)
	}
}

func replayIdempotent(c *gin.Context, idem *redisrepo.IdempotencyStore, storageKey, key string) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}
	c.Header("Idempotency-Key", key)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", payload)
	return true
}

// @Summary  List my orders
// @Param    status  query  string  false  "trip status filter"
// @Success  200  {array}  domain.OrderView
// @Router   /api/v1/orders [get]
func handleListOrders(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Orders.ListOrders(c.Request.Context(), currentUser(c), c.Query("status"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Count my orders by trip status
// @Success  200  {object}  domain.OrderSummary
// @Router   /api/v1/orders/summary [get]
func handleOrderSummary(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svcs.Orders.Summary(c.Request.Context(), currentUser(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

// @Summary  Get order
// @Param    id  path  int  true  "Order ID"
// @Success  200  {object}  domain.OrderView
// @Failure  403  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /api/v1/orders/{id} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		view, err := svcs.Orders.GetOrder(c.Request.Context(), id, currentUser(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// @Summary  Pay order
// @Param    id   path  int              true   "Order ID"
// @Param    req  body  PayOrderRequest  false  "payload"
// @Success  200  {object}  domain.Order
// @Failure  409  {object}  ErrorResponse  "already paid / cancelled"
// @Router   /api/v1/orders/{id}/pay [put]
func handlePayOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req PayOrderRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		order, err := svcs.Booking.PayOrder(c.Request.Context(), id, currentUser(c), req.PaymentMethod)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// @Summary  Cancel order
// @Param    id  path  int  true  "Order ID"
// @Success  200  {object}  domain.Order
// @Failure  409  {object}  ErrorResponse  "already cancelled or completed"
// @Router   /api/v1/orders/{id}/cancel [post]
func handleCancelOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		order, err := svcs.Booking.CancelOrder(c.Request.Context(), id, currentUser(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// @Summary  Select seat for a passenger
// @Param    id   path  int                true  "Order ID"
// @Param    pid  path  int                true  "Passenger ID"
// @Param    req  body  SelectSeatRequest  true  "payload"
// @Success  200  {object}  domain.Passenger
// @Failure  409  {object}  ErrorResponse  "seat taken / order not confirmed"
// @Router   /api/v1/orders/{id}/passengers/{pid}/seat [put]
func handleSelectSeat(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		pid, ok := parseInt64Param(c, "pid")
		if !ok {
			return
		}
		var req SelectSeatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := svcs.Booking.SelectSeat(c.Request.Context(), booking.SelectSeatInput{
			OrderID:     id,
			UserID:      currentUser(c),
			PassengerID: pid,
			Seat:        req.SeatNumber,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// @Summary  Check in
// @Param    id  path  int  true  "Order ID"
// @Success  200  {object}  domain.Order
// @Failure  409  {object}  ErrorResponse  "not paid / not pending"
// @Router   /api/v1/orders/{id}/check-in [post]
func handleCheckIn(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		order, err := svcs.Booking.CheckIn(c.Request.Context(), id, currentUser(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// @Summary  Boarding pass QR code
// @Param    id  path  int  true  "Order ID"
// @Produce  png
// @Success  200  {file}    binary
// @Failure  409  {object}  ErrorResponse  "not checked in"
// @Router   /api/v1/orders/{id}/boarding-pass [get]
func handleBoardingPass(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		img, err := svcs.Orders.BoardingPass(c.Request.Context(), id, currentUser(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Cache-Control", "private, no-store")
		c.Data(http.StatusOK, "image/png", img)
	}
}

// @Summary  Create route
// @Param    req  body  CreateRouteRequest  true  "payload"
// @Success  201  {object}  domain.Route
// @Failure  409  {object}  ErrorResponse
// @Router   /api/v1/admin/routes [post]
func handleCreateRoute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		route, err := svcs.Admin.CreateRoute(c.Request.Context(), admin.RouteInput{
			DepartureCity: req.DepartureCity,
			ArrivalCity:   req.ArrivalCity,
			DistanceKM:    req.DistanceKM,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, route)
	}
}

// @Summary  Create aircraft
// @Param    req  body  CreateAircraftRequest  true  "payload"
// @Success  201  {object}  domain.Aircraft
// @Router   /api/v1/admin/aircraft [post]
func handleCreateAircraft(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAircraftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		a, err := svcs.Admin.CreateAircraft(c.Request.Context(), req.Model)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

// @Summary  Schedule flight
// @Param    req  body  CreateFlightRequest  true  "payload"
// @Success  201  {object}  domain.Flight
// @Failure  404  {object}  ErrorResponse  "route or aircraft missing"
// @Router   /api/v1/admin/flights [post]
func handleCreateFlight(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateFlightRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		f, err := svcs.Admin.CreateFlight(c.Request.Context(), req.input())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, f)
	}
}

// @Summary  Set cabin price
// @Param    id     path  int              true  "Flight ID"
// @Param    class  path  string           true  "Cabin class"
// @Param    req    body  SetPriceRequest  true  "payload"
// @Success  204
// @Router   /api/v1/admin/flights/{id}/cabins/{class}/price [put]
func handleSetCabinPrice(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req SetPriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Admin.SetCabinPrice(c.Request.Context(), id, c.Param("class"), req.PriceCents); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// opPrefix matches the "pkg.Type.Method:" frames errors collect on the way up.
var opPrefix = regexp.MustCompile(`^(?:[A-Za-z]+\.)+[A-Za-z]+:\s?`)

func publicMessage(err error) string {
	msg := err.Error()
	for {
		loc := opPrefix.FindStringIndex(msg)
		if loc == nil {
			return msg
		}
		msg = msg[loc[1]:]
	}
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var rl *booking.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: publicMessage(err)})
		return
	}

	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(status, ErrorResponse{Error: publicMessage(err)})
}
