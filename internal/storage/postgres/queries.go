package postgres

// SQL for client lookup, the reward-event ledger, and daily aggregates.

const (
	queryLookupClient = `
		SELECT client_id, callback_url, secret, signature_secret
		FROM clients
		WHERE client_id = $1
	`

	// queryUpsertClient backs the startup seed loader. Production client
	// management writes these rows out of band.
	queryUpsertClient = `
		INSERT INTO clients (client_id, callback_url, secret, signature_secret, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO UPDATE SET
			callback_url     = EXCLUDED.callback_url,
			secret           = EXCLUDED.secret,
			signature_secret = EXCLUDED.signature_secret,
			updated_at       = EXCLUDED.updated_at
	`

	queryEventExists = `
		SELECT EXISTS (
			SELECT 1 FROM reward_events
			WHERE client_id = $1 AND event_id = $2
		)
	`

	// queryRecordEvent tolerates the benign duplicate race: two concurrent
	// requests for the same event may both pass the Exists check, so the
	// second write lands as an overwrite instead of a constraint violation.
	queryRecordEvent = `
		INSERT INTO reward_events (client_id, event_id, rewards, event_timestamp, user_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id, event_id) DO UPDATE SET
			rewards         = EXCLUDED.rewards,
			event_timestamp = EXCLUDED.event_timestamp,
			user_id         = EXCLUDED.user_id
	`

	// queryUpsertAggregate is last-writer-wins per (app_key, report_date):
	// re-running the reporting job for a day replaces that day's row.
	queryUpsertAggregate = `
		INSERT INTO daily_aggregates (app_key, report_date, ecpm, revenue, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_key, report_date) DO UPDATE SET
			ecpm       = EXCLUDED.ecpm,
			revenue    = EXCLUDED.revenue,
			updated_at = EXCLUDED.updated_at
	`

	queryGetAggregate = `
		SELECT app_key, report_date, ecpm, revenue
		FROM daily_aggregates
		WHERE app_key = $1 AND report_date = $2
	`
)
