package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RosterMigrator imports the legacy system's Mongo account roster into the
// registrations table. It is a one-shot tool, safe to rerun: existing
// accounts are skipped.
type RosterMigrator struct {
	pgDB       *bun.DB
	uri        string
	database   string
	collection string
	batchSize  int
}

type MigrationStats struct {
	Read      int
	Imported  int
	Skipped   int
	StartTime time.Time
}

// legacyAccount mirrors the legacy bot's registered-user document.
type legacyAccount struct {
	UserID   string `bson:"userid"`
	Username string `bson:"username"`
	Active   *bool  `bson:"active"`
}

func NewRosterMigrator(pgDB *bun.DB, uri, database, collection string) *RosterMigrator {
	if collection == "" {
		collection = "registered_users"
	}
	return &RosterMigrator{
		pgDB:       pgDB,
		uri:        uri,
		database:   database,
		collection: collection,
		batchSize:  500,
	}
}

func (m *RosterMigrator) Run(ctx context.Context) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return stats, fmt.Errorf("failed to connect to legacy mongo: %w", err)
	}
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			slog.Warn("Failed to disconnect from legacy mongo", slog.Any("error", err))
		}
	}()

	coll := client.Database(m.database).Collection(m.collection)
	cursor, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return stats, fmt.Errorf("failed to query legacy roster: %w", err)
	}
	defer cursor.Close(ctx)

	batch := make([]*models.Registration, 0, m.batchSize)
	for cursor.Next(ctx) {
		var doc legacyAccount
		if err := cursor.Decode(&doc); err != nil {
			slog.Warn("Skipping undecodable legacy account", slog.Any("error", err))
			stats.Skipped++
			continue
		}
		stats.Read++

		if doc.UserID == "" {
			stats.Skipped++
			continue
		}

		status := models.RegistrationStatusActive
		if doc.Active != nil && !*doc.Active {
			status = models.RegistrationStatusInactive
		}
		displayName := doc.Username
		if displayName == "" {
			displayName = doc.UserID
		}

		now := time.Now()
		batch = append(batch, &models.Registration{
			AccountID:   doc.UserID,
			DisplayName: displayName,
			Status:      status,
			CreatedAt:   now,
			UpdatedAt:   now,
		})

		if len(batch) >= m.batchSize {
			if err := m.flush(ctx, batch, stats); err != nil {
				return stats, err
			}
			batch = batch[:0]
		}
	}
	if err := cursor.Err(); err != nil {
		return stats, fmt.Errorf("legacy roster cursor failed: %w", err)
	}

	if len(batch) > 0 {
		if err := m.flush(ctx, batch, stats); err != nil {
			return stats, err
		}
	}

	slog.Info("Legacy roster migration finished",
		slog.Int("read", stats.Read),
		slog.Int("imported", stats.Imported),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("took", time.Since(stats.StartTime)))
	return stats, nil
}

func (m *RosterMigrator) flush(ctx context.Context, batch []*models.Registration, stats *MigrationStats) error {
	result, err := m.pgDB.NewInsert().
		Model(&batch).
		On("CONFLICT (account_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert roster batch: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil {
		stats.Imported += int(affected)
		stats.Skipped += len(batch) - int(affected)
	} else {
		stats.Imported += len(batch)
	}
	return nil
}
