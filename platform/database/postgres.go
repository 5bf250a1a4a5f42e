package database

import (
	"context"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/config"
	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/sirupsen/logrus"
)

func PostgreSQLConnection(cfg config.Database) *pg.DB {
	db := pg.Connect(&pg.Options{
		User:     cfg.User,
		Addr:     cfg.Addr,
		Password: cfg.Password,
		Database: cfg.Name,
	})
	db.AddQueryHook(queryLogger{log: logrus.WithField("component", "postgres")})
	return db
}

// CreateSchema creates any missing table.
func CreateSchema(db *pg.DB) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Game)(nil),
		(*models.Seat)(nil),
		(*models.GameProperty)(nil),
		(*models.PlayHistory)(nil),
		(*models.Transfer)(nil),
	}
	for _, model := range tables {
		err := db.Model(model).CreateTable(&orm.CreateTableOptions{IfNotExists: true})
		if err != nil {
			return err
		}
	}
	return nil
}

type queryLogger struct {
	log *logrus.Entry
}

type startKey struct{}

func (h queryLogger) BeforeQuery(ctx context.Context, _ *pg.QueryEvent) (context.Context, error) {
	return context.WithValue(ctx, startKey{}, time.Now()), nil
}

func (h queryLogger) AfterQuery(ctx context.Context, event *pg.QueryEvent) error {
	if !h.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return nil
	}
	query, err := event.FormattedQuery()
	if err != nil {
		return nil
	}
	entry := h.log.WithField("query", string(query))
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		entry = entry.WithField("took", time.Since(start))
	}
	if event.Err != nil {
		entry.WithError(event.Err).Debug("query failed")
		return nil
	}
	entry.Debug("query")
	return nil
}
