package migrations

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	migrate "github.com/xakep666/mongo-migrate"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	log            = logging.Logger("migrations")
	migrateTimeout = time.Hour
)

func m001(collection string) migrate.Migration {
	return migrate.Migration{
		Version:     1,
		Description: "assign the default queue to jobs without one",
		Up: func(db *mongo.Database) error {
			log.Info("migrating 001 up")
			ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
			defer cancel()
			_, err := db.Collection(collection).UpdateMany(ctx,
				bson.M{"$or": bson.A{bson.M{"queue": bson.M{"$exists": false}}, bson.M{"queue": ""}}},
				bson.M{"$set": bson.M{"queue": "default"}},
			)
			return err
		},
		Down: func(db *mongo.Database) error {
			log.Info("migrating 001 down")
			return nil
		},
	}
}

func m002(collection string) migrate.Migration {
	return migrate.Migration{
		Version:     2,
		Description: "backfill updated_at from created_at",
		Up: func(db *mongo.Database) error {
			log.Info("migrating 002 up")
			ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
			defer cancel()
			_, err := db.Collection(collection).UpdateMany(ctx,
				bson.M{"updated_at": bson.M{"$exists": false}},
				bson.A{bson.M{"$set": bson.M{"updated_at": "$created_at"}}},
			)
			return err
		},
		Down: func(db *mongo.Database) error {
			log.Info("migrating 002 down")
			return nil
		},
	}
}

// Migrate runs every pending migration against the jobs collection.
func Migrate(db *mongo.Database, collection string) error {
	m := migrate.NewMigrate(
		db,
		m001(collection),
		m002(collection),
	)
	return m.Up(migrate.AllAvailable)
}
