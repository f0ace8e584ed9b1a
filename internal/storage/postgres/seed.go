package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/adbridge-lab/adbridge/internal/storage"
	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk YAML shape of the client seed file:
//
//	clients:
//	  - client_id: game-studio-1
//	    callback_url: https://example.com/reward
//	    secret: legacy-shared
//	    signature_secret: per-client-hmac-key
type seedFile struct {
	Clients []storage.Client `yaml:"clients"`
}

// SeedClients upserts the clients from a YAML seed file into the directory.
// A missing path is valid (zero seeded clients); a malformed file or a client
// without an ID is a startup error. Used for bootstrap and local development;
// production client management writes the table out of band.
func SeedClients(ctx context.Context, db *sql.DB, path string) error {
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("[Postgres] Client seed file not present, skipping", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("client seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse client seed file %q: %w", path, err)
	}

	now := time.Now().UTC()
	for i, c := range f.Clients {
		if strings.TrimSpace(c.ClientID) == "" {
			return fmt.Errorf("client seed file %q: entry %d has no client_id", path, i)
		}
		_, err := db.ExecContext(ctx, queryUpsertClient,
			c.ClientID,
			nullIfEmpty(c.CallbackURL),
			nullIfEmpty(c.Secret),
			nullIfEmpty(c.SignatureSecret),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed client %q: %w", c.ClientID, err)
		}
	}

	slog.Info("[Postgres] Seeded clients from file", "path", path, "count", len(f.Clients))
	return nil
}

// nullIfEmpty maps "" to SQL NULL so optional client fields round-trip as
// absent rather than empty strings.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
