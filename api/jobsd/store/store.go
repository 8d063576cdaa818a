package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	logger "github.com/ipfs/go-log/v2"
	"github.com/oklog/ulid/v2"
	"github.com/textileio/minion/api/jobsd/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	log = logger.Logger("jobsd.store")

	// ErrJobNotFound indicates no job matches the given id.
	ErrJobNotFound = errors.New("job not found")
)

// DefaultQueue is the queue assigned to jobs created without one.
const DefaultQueue = "default"

// Store persists jobs in a MongoDB collection.
type Store struct {
	col *mongo.Collection
}

// New returns a Store backed by the named collection, creating its indexes.
func New(db *mongo.Database, collection string) (*Store, error) {
	s := &Store{col: db.Collection(collection)}
	if err := s.ensureIndexes(); err != nil {
		return nil, fmt.Errorf("ensuring mongodb indexes: %s", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{bson.E{Key: "client", Value: 1}},
		},
		{
			Keys: bson.D{bson.E{Key: "kind", Value: 1}},
		},
		{
			Keys: bson.D{bson.E{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{bson.E{Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{
				bson.E{Key: "status", Value: 1},
				bson.E{Key: "updated_at", Value: 1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating jobs index: %s", err)
	}
	return nil
}

// Create saves a new pending job.
func (s *Store) Create(ctx context.Context, kind, client, queue, args string) (*model.Job, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if args == "" {
		args = "{}"
	}
	now := time.Now().UTC()
	j := &model.Job{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Client:    client,
		Kind:      kind,
		Queue:     queue,
		Args:      args,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.col.InsertOne(ctx, j); err != nil {
		return nil, fmt.Errorf("inserting job: %s", err)
	}
	return j, nil
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (*model.Job, error) {
	r := s.col.FindOne(ctx, bson.M{"_id": id})
	if errors.Is(r.Err(), mongo.ErrNoDocuments) {
		return nil, ErrJobNotFound
	} else if r.Err() != nil {
		return nil, fmt.Errorf("finding job: %s", r.Err())
	}
	var j model.Job
	if err := r.Decode(&j); err != nil {
		return nil, fmt.Errorf("decoding job: %s", err)
	}
	return &j, nil
}

// Filter narrows List and Stats queries. Zero values match everything.
type Filter struct {
	Client string
	Status model.Status
}

func (f Filter) query() bson.M {
	q := bson.M{}
	if f.Client != "" {
		q["client"] = f.Client
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	return q
}

// List returns a page of jobs matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter, limit, skip int64) ([]*model.Job, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit should be greater than zero")
	}
	if skip < 0 {
		skip = 0
	}
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: -1}, bson.E{Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(skip)
	c, err := s.col.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, fmt.Errorf("executing query: %s", err)
	}
	defer func() {
		if err := c.Close(ctx); err != nil {
			log.Errorf("closing list cursor: %s", err)
		}
	}()
	jobs := []*model.Job{}
	if err := c.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decoding all results: %s", err)
	}
	return jobs, nil
}

type statusCount struct {
	Status model.Status `bson:"_id"`
	Count  int64        `bson:"count"`
}

// Stats counts jobs per status, optionally scoped to a client.
func (s *Store) Stats(ctx context.Context, client string) (model.Stats, error) {
	pipeline := bson.A{}
	if client != "" {
		pipeline = append(pipeline, bson.M{"$match": bson.M{"client": client}})
	}
	pipeline = append(pipeline, bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}})

	c, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return model.Stats{}, fmt.Errorf("aggregating stats: %s", err)
	}
	defer func() {
		if err := c.Close(ctx); err != nil {
			log.Errorf("closing stats cursor: %s", err)
		}
	}()
	var counts []statusCount
	if err := c.All(ctx, &counts); err != nil {
		return model.Stats{}, fmt.Errorf("decoding stats: %s", err)
	}
	var stats model.Stats
	for _, sc := range counts {
		stats.Add(sc.Status, sc.Count)
	}
	return stats, nil
}

// Cancel marks a single job as cancelled.
func (s *Store) Cancel(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, model.StatusCancelled)
}

// Archive marks a single job as archived.
func (s *Store) Archive(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, model.StatusArchived)
}

// Requeue puts a job back into pending so a worker picks it up again.
func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, model.StatusPending)
}

func (s *Store) setStatus(ctx context.Context, id string, status model.Status) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("updating job status: %s", err)
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Transition moves every job in status from to status to, returning the
// number of jobs changed.
func (s *Store) Transition(ctx context.Context, from, to model.Status) (int64, error) {
	res, err := s.col.UpdateMany(ctx, bson.M{"status": from}, bson.M{
		"$set": bson.M{"status": to, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("moving %s jobs to %s: %s", from, to, err)
	}
	return res.ModifiedCount, nil
}

// Claim moves up to limit pending jobs of the given kinds in queue to queued,
// oldest first, and returns the jobs it moved. A job changed by someone else
// between the read and the update is skipped.
func (s *Store) Claim(ctx context.Context, queue string, kinds []string, limit int64) ([]*model.Job, error) {
	if limit <= 0 || len(kinds) == 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: 1}, bson.E{Key: "_id", Value: 1}}).
		SetLimit(limit)
	c, err := s.col.Find(ctx, bson.M{
		"queue":  queue,
		"status": model.StatusPending,
		"kind":   bson.M{"$in": kinds},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("querying pending jobs: %s", err)
	}
	var pending []*model.Job
	err = c.All(ctx, &pending)
	if cerr := c.Close(ctx); cerr != nil {
		log.Errorf("closing claim cursor: %s", cerr)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding pending jobs: %s", err)
	}

	claimed := make([]*model.Job, 0, len(pending))
	for _, j := range pending {
		now := time.Now().UTC()
		res, err := s.col.UpdateOne(ctx, bson.M{"_id": j.ID, "status": model.StatusPending}, bson.M{
			"$set": bson.M{"status": model.StatusQueued, "updated_at": now},
		})
		if err != nil {
			return claimed, fmt.Errorf("claiming job %s: %s", j.ID, err)
		}
		if res.ModifiedCount == 0 {
			continue
		}
		j.Status = model.StatusQueued
		j.UpdatedAt = now
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// MarkRunning moves a queued job to running and returns it. ErrJobNotFound
// means the job is gone or no longer queued.
func (s *Store) MarkRunning(ctx context.Context, id string) (*model.Job, error) {
	r := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": model.StatusQueued},
		bson.M{"$set": bson.M{"status": model.StatusRunning, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	if errors.Is(r.Err(), mongo.ErrNoDocuments) {
		return nil, ErrJobNotFound
	} else if r.Err() != nil {
		return nil, fmt.Errorf("marking job running: %s", r.Err())
	}
	var j model.Job
	if err := r.Decode(&j); err != nil {
		return nil, fmt.Errorf("decoding job: %s", err)
	}
	return &j, nil
}

// Release returns a queued job to pending. Jobs in any other status are left
// alone.
func (s *Store) Release(ctx context.Context, id string) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "status": model.StatusQueued}, bson.M{
		"$set": bson.M{"status": model.StatusPending, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("releasing job: %s", err)
	}
	return nil
}

// AddAttempt appends an attempt to a job and sets the job status to the
// attempt status.
func (s *Store) AddAttempt(ctx context.Context, id string, a *model.Attempt) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":  bson.M{"status": a.Status, "updated_at": time.Now().UTC()},
		"$push": bson.M{"attempts": a},
	})
	if err != nil {
		return fmt.Errorf("adding attempt: %s", err)
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DeleteOlderThan removes jobs in status last updated before the given time.
func (s *Store) DeleteOlderThan(ctx context.Context, status model.Status, before time.Time) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{
		"status":     status,
		"updated_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("deleting %s jobs: %s", status, err)
	}
	return res.DeletedCount, nil
}
