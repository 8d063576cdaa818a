package service

import (
	"context"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/textileio/minion/api/jobsd/gateway"
	"github.com/textileio/minion/api/jobsd/migrations"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/api/jobsd/runner"
	"github.com/textileio/minion/api/jobsd/store"
	"github.com/textileio/minion/util"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var log = logging.Logger("jobsd.service")

const (
	// DefaultCleanupSchedule runs cleanup daily at 08:00. The schedule has a
	// leading seconds field.
	DefaultCleanupSchedule = "0 0 8 * * *"

	// CleanupKind is the job kind of scheduled cleanups.
	CleanupKind = "cleanup"

	connectTimeout = time.Minute
)

// Service runs the jobs API over a MongoDB store.
type Service struct {
	config Config

	db      *mongo.Database
	store   *store.Store
	gateway *gateway.Gateway
	runner  *runner.Runner
}

// Config defines the service configuration.
type Config struct {
	ListenAddr ma.Multiaddr
	Debug      bool

	DBURI        string
	DBName       string
	DBCollection string

	StaticDir string

	CleanupSchedule string
	KeepFinished    time.Duration
	KeepFailed      time.Duration

	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration

	ShutdownWait time.Duration
}

func NewService(ctx context.Context, config Config) (*Service, error) {
	if config.Debug {
		if err := util.SetLogLevels(map[string]string{
			"jobsd.service": "debug",
			"jobsd.store":   "debug",
			"jobsd.runner":  "debug",
		}); err != nil {
			return nil, err
		}
	}
	if config.DBCollection == "" {
		config.DBCollection = "jobs"
	}
	if config.CleanupSchedule == "" {
		config.CleanupSchedule = DefaultCleanupSchedule
	}
	if config.ShutdownWait == 0 {
		config.ShutdownWait = 5 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.DBURI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %s", err)
	}
	if err := ping(ctx, client); err != nil {
		return nil, fmt.Errorf("pinging mongo: %s", err)
	}
	db := client.Database(config.DBName)
	if err = migrations.Migrate(db, config.DBCollection); err != nil {
		return nil, fmt.Errorf("executing migrations: %s", err)
	}

	s, err := store.New(db, config.DBCollection)
	if err != nil {
		return nil, fmt.Errorf("creating store: %s", err)
	}

	g, err := gateway.NewGateway(gateway.Config{
		Addr:      config.ListenAddr,
		Store:     s,
		StaticDir: config.StaticDir,
		Debug:     config.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %s", err)
	}

	var opts []runner.Option
	if config.Concurrency > 0 {
		opts = append(opts, runner.WithConcurrency(config.Concurrency))
	}
	if config.PollInterval > 0 {
		opts = append(opts, runner.WithPollInterval(config.PollInterval))
	}
	if config.JobTimeout > 0 {
		opts = append(opts, runner.WithTimeout(config.JobTimeout))
	}
	r, err := runner.New(s, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating runner: %s", err)
	}

	srv := &Service{
		config:  config,
		db:      db,
		store:   s,
		gateway: g,
		runner:  r,
	}
	if err := r.Register(CleanupKind, func(ctx context.Context, _ *model.Job) error {
		n, err := srv.Cleanup(ctx)
		if err != nil {
			return err
		}
		log.Debugf("cleanup job removed %d jobs", n)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("registering cleanup: %s", err)
	}
	if config.Debug {
		r.Subscribe(func(e runner.Event) {
			log.Debugf("%s %s %s", e.Type, e.Kind, e.JobID)
		})
	}
	return srv, nil
}

// ping waits for mongo to answer, backing off between attempts.
func ping(ctx context.Context, client *mongo.Client) error {
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = connectTimeout
	return backoff.Retry(func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := client.Ping(pctx, readpref.Primary())
		if err != nil {
			log.Warnf("mongo not ready: %s", err)
		}
		return err
	}, backoff.WithContext(eb, ctx))
}

func (s *Service) Start() error {
	if _, err := s.runner.Schedule(s.config.CleanupSchedule, CleanupKind, "jobsd", ""); err != nil {
		return fmt.Errorf("scheduling cleanup: %s", err)
	}
	s.runner.Start()

	return s.gateway.Start()
}

// Runner returns the job runner so callers can register workers before Start.
func (s *Service) Runner() *runner.Runner {
	return s.runner
}

// Addr returns the address the gateway listens on.
func (s *Service) Addr() string {
	return s.gateway.Addr()
}

func (s *Service) Stop() error {
	var errs error
	if err := s.gateway.Stop(s.config.ShutdownWait); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("stopping gateway: %s", err))
	}
	if err := s.runner.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("closing runner: %s", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	if err := s.db.Client().Disconnect(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("disconnecting from mongo: %s", err))
	}
	return errs
}
