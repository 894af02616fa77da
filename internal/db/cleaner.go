package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"go.uber.org/zap"
)

// softDeleteTables lists the tables carrying deleted_at, in an order that
// purges children before parents.
func softDeleteTables() []models.Table {
	order := []models.Table{
		models.TableMessages,
		models.TableFiles,
		models.TableNotes,
		models.TableDirectories,
		models.TableProjects,
		models.TableFolders,
		models.TableContacts,
	}
	tables := make([]models.Table, 0, len(order))
	for _, t := range order {
		if s, err := models.SchemaOf(t); err == nil && s.SoftDelete {
			tables = append(tables, t)
		}
	}
	return tables
}

// StartSoftDeleteCleaner permanently removes rows that were soft-deleted
// more than retention ago, checking every interval until ctx is done.
func StartSoftDeleteCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				PurgeSoftDeleted(ctx, db, now.Add(-retention), log)
			}
		}
	}()
}

// PurgeSoftDeleted runs one cleaning pass over every soft-deletable table and
// returns the number of rows removed. A failing table is logged and skipped.
func PurgeSoftDeleted(ctx context.Context, db *sql.DB, cutoff time.Time, log *zap.Logger) int64 {
	var total int64
	for _, table := range softDeleteTables() {
		res, err := db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE deleted_at IS NOT NULL AND deleted_at < $1`, table),
			cutoff)
		if err != nil {
			log.Error("failed to clean soft-deleted rows",
				zap.String("table", string(table)), zap.Error(err))
			continue
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			log.Info("cleaned soft-deleted rows",
				zap.String("table", string(table)), zap.Int64("removed", rows))
			total += rows
		}
	}
	return total
}
