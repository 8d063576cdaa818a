package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/rs/cors"
	gincors "github.com/rs/cors/wrapper/gin"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/api/jobsd/store"
	"github.com/textileio/minion/util"
)

var log = logging.Logger("jobsd.gateway")

const (
	handlerTimeout = time.Minute

	// DefaultPageSize is used when a list request carries no limit.
	DefaultPageSize = 25
	// MaxPageSize caps the limit a list request may ask for.
	MaxPageSize = 1000
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Store is the job persistence the gateway serves.
type Store interface {
	Create(ctx context.Context, kind, client, queue, args string) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, filter store.Filter, limit, skip int64) ([]*model.Job, error)
	Stats(ctx context.Context, client string) (model.Stats, error)
	Cancel(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string) error
	Transition(ctx context.Context, from, to model.Status) (int64, error)
}

// Gateway serves the jobs REST API.
type Gateway struct {
	addr      ma.Multiaddr
	server    *http.Server
	store     Store
	staticDir string
	debug     bool
}

// Config defines the gateway configuration.
type Config struct {
	Addr  ma.Multiaddr
	Store Store
	// StaticDir, when set, is served at the root for the dashboard assets.
	StaticDir string
	Debug     bool
}

// NewGateway returns a new gateway.
func NewGateway(conf Config) (*Gateway, error) {
	if conf.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if conf.Debug {
		if err := util.SetLogLevels(map[string]string{
			"jobsd.gateway": "debug",
		}); err != nil {
			return nil, err
		}
	}
	return &Gateway{
		addr:      conf.Addr,
		store:     conf.Store,
		staticDir: conf.StaticDir,
		debug:     conf.Debug,
	}, nil
}

// Handler returns the gateway's HTTP routes.
func (g *Gateway) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	if g.debug {
		router.Use(gin.Logger())
		pprof.Register(router)
	}
	router.Use(gincors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodPut,
			http.MethodDelete,
		},
	}))
	if g.staticDir != "" {
		router.Use(static.Serve("/", static.LocalFile(g.staticDir, false)))
	}

	router.GET("/health", func(c *gin.Context) {
		c.Writer.WriteHeader(http.StatusNoContent)
	})

	jobs := router.Group("/jobs")
	jobs.GET("", g.listHandler)
	jobs.GET("/", g.listForClientHandler)
	jobs.POST("", g.createHandler)
	jobs.POST("/", g.createHandler)
	jobs.GET("/:id", g.getHandler)
	jobs.PATCH("/:id", g.requeueHandler)
	jobs.DELETE("/:id", g.deleteHandler)
	return router
}

// Start the gateway.
func (g *Gateway) Start() error {
	addr, err := util.TCPAddrFromMultiAddr(g.addr)
	if err != nil {
		return err
	}
	g.server = &http.Server{
		Addr:    addr,
		Handler: g.Handler(),
	}
	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway error: %s", err)
		}
		log.Info("gateway was shutdown")
	}()
	log.Infof("gateway listening at %s", g.server.Addr)
	return nil
}

// Addr returns the gateway's address.
func (g *Gateway) Addr() string {
	return g.server.Addr
}

// Stop the gateway, waiting up to wait for in-flight requests.
func (g *Gateway) Stop(wait time.Duration) error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func (g *Gateway) listHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	filter, limit, skip, err := listParams(c)
	if err != nil {
		renderError(c, http.StatusBadRequest, err)
		return
	}
	stats, err := g.store.Stats(ctx, filter.Client)
	if err != nil {
		renderError(c, http.StatusInternalServerError, err)
		return
	}
	list, err := g.store.List(ctx, filter, limit, skip)
	if err != nil {
		renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, model.JobsResponse{Results: list, Stats: stats})
}

func (g *Gateway) listForClientHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	filter, limit, skip, err := listParams(c)
	if err != nil {
		renderError(c, http.StatusBadRequest, err)
		return
	}
	list, err := g.store.List(ctx, filter, limit, skip)
	if err != nil {
		renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, model.ClientJobsResponse{Jobs: list})
}

func (g *Gateway) createHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	kind := c.Query("job")
	if kind == "" {
		kind = c.Query("kind")
	}
	if kind == "" {
		renderError(c, http.StatusBadRequest, fmt.Errorf("missing kind"))
		return
	}
	client := c.Query("client")
	if client == "" {
		renderError(c, http.StatusBadRequest, fmt.Errorf("missing client"))
		return
	}
	args := c.Query("args")
	if args != "" && !json.Valid([]byte(args)) {
		renderError(c, http.StatusBadRequest, fmt.Errorf("args must be valid JSON"))
		return
	}

	j, err := g.store.Create(ctx, kind, client, c.Query("queue"), args)
	if err != nil {
		renderError(c, http.StatusInternalServerError, err)
		return
	}
	log.Debugf("created job %s (%s/%s)", j.ID, client, kind)
	c.JSON(http.StatusOK, model.ActionResponse{ID: j.ID})
}

func (g *Gateway) getHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	j, err := g.store.Get(ctx, c.Param("id"))
	if err != nil {
		renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.JobResponse{Job: j})
}

func (g *Gateway) requeueHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	id := c.Param("id")
	if err := g.store.Requeue(ctx, id); err != nil {
		renderStoreError(c, err)
		return
	}
	log.Debugf("requeued job %s", id)
	c.JSON(http.StatusOK, model.ActionResponse{ID: id})
}

// deleteHandler cancels (soft) or archives (hard) a job. The status names
// pending, cancelled, and failed address every job in that status.
func (g *Gateway) deleteHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	id := c.Param("id")
	hard := c.Query("hard") == "true"

	var from, to model.Status
	switch {
	case id == string(model.StatusPending) && !hard:
		from, to = model.StatusPending, model.StatusCancelled
	case id == string(model.StatusFailed) && hard:
		from, to = model.StatusFailed, model.StatusArchived
	case id == string(model.StatusCancelled) && hard:
		from, to = model.StatusCancelled, model.StatusArchived
	}
	if from != "" {
		n, err := g.store.Transition(ctx, from, to)
		if err != nil {
			renderError(c, http.StatusInternalServerError, err)
			return
		}
		log.Debugf("moved %d %s jobs to %s", n, from, to)
		c.JSON(http.StatusOK, model.ActionResponse{Count: n})
		return
	}

	// A single hard delete archives the job rather than cancelling it.
	var err error
	if hard {
		err = g.store.Archive(ctx, id)
	} else {
		err = g.store.Cancel(ctx, id)
	}
	if err != nil {
		renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ActionResponse{ID: id})
}

func listParams(c *gin.Context) (filter store.Filter, limit, skip int64, err error) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit = queryInt(c, "limit", DefaultPageSize)
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	status := model.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		return filter, 0, 0, fmt.Errorf("unknown status: %s", status)
	}
	filter = store.Filter{Client: c.Query("client"), Status: status}
	return filter, limit, (page - 1) * limit, nil
}

func queryInt(c *gin.Context, name string, def int64) int64 {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func renderStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrJobNotFound) {
		renderError(c, http.StatusNotFound, err)
		return
	}
	renderError(c, http.StatusInternalServerError, err)
}

func renderError(c *gin.Context, code int, err error) {
	if code >= http.StatusInternalServerError {
		log.Errorf("handler error: %v", err)
	} else {
		log.Debugf("bad request: %v", err)
	}
	c.JSON(code, model.ErrorResponse{Error: true, Message: err.Error()})
}
