package store

// Schema initialization statements. Each statement is idempotent so the
// stores can run them on every process start. Statements execute one at a
// time: pgx's extended protocol does not accept multi-statement strings.

var hotSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sensor_data_raw (
		time               TIMESTAMPTZ NOT NULL,
		equipment_id       TEXT NOT NULL,
		tenant_id          TEXT NOT NULL DEFAULT '',
		temperature        DOUBLE PRECISION,
		vibration          DOUBLE PRECISION,
		pressure           DOUBLE PRECISION,
		power_consumption  DOUBLE PRECISION,
		custom_metrics     JSONB,
		facility_id        TEXT,
		line_id            TEXT,
		ingestion_timestamp TIMESTAMPTZ,
		source             TEXT,
		has_anomalies      BOOLEAN NOT NULL DEFAULT FALSE,
		data_hash          TEXT
	)`,

	// One-hour chunks; a no-op when the hypertable already exists.
	`SELECT create_hypertable('sensor_data_raw', 'time',
		chunk_time_interval => INTERVAL '1 hour', if_not_exists => TRUE)`,

	`SELECT add_retention_policy('sensor_data_raw', INTERVAL '30 days',
		if_not_exists => TRUE)`,

	// The unique index doubles as the upsert conflict target. Hypertable
	// unique indexes must include the partitioning column.
	`CREATE UNIQUE INDEX IF NOT EXISTS sensor_data_raw_identity_idx
		ON sensor_data_raw (time, equipment_id, tenant_id)`,

	`CREATE INDEX IF NOT EXISTS sensor_data_raw_equipment_idx
		ON sensor_data_raw (equipment_id, time DESC)`,

	`ALTER TABLE sensor_data_raw ENABLE ROW LEVEL SECURITY`,

	// The pools that serve queries also run this schema, so the app role
	// owns the table. Owners bypass policies unless FORCE is set.
	`ALTER TABLE sensor_data_raw FORCE ROW LEVEL SECURITY`,

	`DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM pg_policies
			WHERE tablename = 'sensor_data_raw' AND policyname = 'tenant_isolation'
		) THEN
			CREATE POLICY tenant_isolation ON sensor_data_raw
				USING (tenant_id = current_setting('app.current_tenant_id', true));
		END IF;
	END $$`,
}

var warmSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS equipment_status (
		equipment_id        TEXT PRIMARY KEY,
		tenant_id           TEXT NOT NULL DEFAULT '',
		last_seen           TIMESTAMPTZ NOT NULL,
		current_temperature DOUBLE PRECISION,
		current_vibration   DOUBLE PRECISION,
		current_pressure    DOUBLE PRECISION,
		status              TEXT NOT NULL DEFAULT 'online',
		facility_id         TEXT,
		line_id             TEXT,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS equipment_status_tenant_idx
		ON equipment_status (tenant_id, equipment_id)`,

	`ALTER TABLE equipment_status ENABLE ROW LEVEL SECURITY`,

	// Same owner-bypass hazard as the hot tier.
	`ALTER TABLE equipment_status FORCE ROW LEVEL SECURITY`,

	`DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM pg_policies
			WHERE tablename = 'equipment_status' AND policyname = 'tenant_isolation'
		) THEN
			CREATE POLICY tenant_isolation ON equipment_status
				USING (tenant_id = current_setting('app.current_tenant_id', true));
		END IF;
	END $$`,
}
