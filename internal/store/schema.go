package store

// Table names persist across versions; do not rename without a migration.

var primarySchema = []string{
	`CREATE TABLE IF NOT EXISTS market_stats (
		id BIGSERIAL PRIMARY KEY,
		venue TEXT NOT NULL,
		symbol TEXT NOT NULL,
		mark_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		index_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		open_interest DOUBLE PRECISION NOT NULL DEFAULT 0,
		open_interest_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		funding_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		funding_interval_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume_base_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume_quote_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		low_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		high_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		change_24h_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		recorded_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_market_stats_venue_symbol_ts
		ON market_stats (venue, symbol, recorded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_market_stats_recorded_at
		ON market_stats (recorded_at)`,

	`CREATE TABLE IF NOT EXISTS market_stats_1m (
		venue TEXT NOT NULL,
		symbol TEXT NOT NULL,
		normalized_symbol TEXT NOT NULL,
		bucket_ts BIGINT NOT NULL,
		avg_mark_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_volatility DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume_base_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume_quote_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_oi_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_oi_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_funding_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_funding_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_funding_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_funding_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		sample_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (venue, symbol, bucket_ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_market_stats_1m_bucket
		ON market_stats_1m (bucket_ts)`,

	`CREATE TABLE IF NOT EXISTS market_history (
		venue TEXT NOT NULL,
		symbol TEXT NOT NULL,
		normalized_symbol TEXT NOT NULL,
		bucket_ts BIGINT NOT NULL,
		avg_mark_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_volatility DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume_base_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume_quote_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_oi_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_oi_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_funding_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_funding_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_funding_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_funding_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		sample_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (venue, symbol, bucket_ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_market_history_norm
		ON market_history (normalized_symbol, bucket_ts)`,

	`CREATE TABLE IF NOT EXISTS normalized_tokens (
		normalized_symbol TEXT NOT NULL,
		venue TEXT NOT NULL,
		symbol TEXT NOT NULL,
		mark_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		index_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		open_interest DOUBLE PRECISION NOT NULL DEFAULT 0,
		open_interest_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume_quote_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		funding_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		funding_rate_1h DOUBLE PRECISION NOT NULL DEFAULT 0,
		funding_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		atr_14 DOUBLE PRECISION NOT NULL DEFAULT 0,
		volatility_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		volatility_7d DOUBLE PRECISION NOT NULL DEFAULT 0,
		bollinger_width DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (normalized_symbol, venue)
	)`,

	`CREATE TABLE IF NOT EXISTS volatility_stats (
		venue TEXT NOT NULL,
		symbol TEXT NOT NULL,
		atr_14 DOUBLE PRECISION NOT NULL DEFAULT 0,
		volatility_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		volatility_7d DOUBLE PRECISION NOT NULL DEFAULT 0,
		bollinger_width DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (venue, symbol)
	)`,

	`CREATE TABLE IF NOT EXISTS tracker_status (
		venue TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_error TEXT NOT NULL DEFAULT '',
		reconnect_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

var unifiedSchema = []string{
	`CREATE TABLE IF NOT EXISTS unified_v3 (
		normalized_symbol TEXT NOT NULL,
		venue TEXT NOT NULL,
		funding_time BIGINT NOT NULL,
		symbol TEXT NOT NULL,
		rate_raw DOUBLE PRECISION NOT NULL DEFAULT 0,
		rate_raw_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		interval_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		rate_1h_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		rate_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT 'live',
		synced_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		open_interest DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (normalized_symbol, venue, funding_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_unified_v3_venue_time
		ON unified_v3 (venue, funding_time)`,
	`CREATE INDEX IF NOT EXISTS idx_unified_v3_time
		ON unified_v3 (funding_time)`,

	`CREATE TABLE IF NOT EXISTS funding_ma (
		normalized_symbol TEXT NOT NULL,
		venue TEXT NOT NULL,
		window_tag TEXT NOT NULL,
		ma_rate_1h DOUBLE PRECISION NOT NULL DEFAULT 0,
		ma_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		sample_count BIGINT NOT NULL DEFAULT 0,
		stddev DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		window_start BIGINT NOT NULL DEFAULT 0,
		window_end BIGINT NOT NULL DEFAULT 0,
		calculated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (normalized_symbol, venue, window_tag)
	)`,

	`CREATE TABLE IF NOT EXISTS funding_ma_cross (
		normalized_symbol TEXT NOT NULL,
		window_tag TEXT NOT NULL,
		avg_rate_1h DOUBLE PRECISION NOT NULL DEFAULT 0,
		weighted_rate_1h DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_exchange_ma DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_exchange_ma DOUBLE PRECISION NOT NULL DEFAULT 0,
		spread DOUBLE PRECISION NOT NULL DEFAULT 0,
		exchange_count BIGINT NOT NULL DEFAULT 0,
		calculated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (normalized_symbol, window_tag)
	)`,

	`CREATE TABLE IF NOT EXISTS funding_ma_cache (
		normalized_symbol TEXT NOT NULL,
		venue TEXT NOT NULL,
		window_tag TEXT NOT NULL,
		ma_rate_1h DOUBLE PRECISION NOT NULL DEFAULT 0,
		ma_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		sample_count BIGINT NOT NULL DEFAULT 0,
		calculated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (normalized_symbol, venue, window_tag)
	)`,

	`CREATE TABLE IF NOT EXISTS arbitrage_v3 (
		normalized_symbol TEXT NOT NULL,
		long_venue TEXT NOT NULL,
		short_venue TEXT NOT NULL,
		window_tag TEXT NOT NULL,
		long_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		short_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		spread DOUBLE PRECISION NOT NULL DEFAULT 0,
		long_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		short_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		spread_apr DOUBLE PRECISION NOT NULL DEFAULT 0,
		stability_score INTEGER NOT NULL DEFAULT 0,
		is_stable BOOLEAN NOT NULL DEFAULT FALSE,
		calculated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (normalized_symbol, long_venue, short_venue, window_tag)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_arbitrage_v3_spread
		ON arbitrage_v3 (spread_apr DESC)`,

	`CREATE TABLE IF NOT EXISTS unified_sync_state (
		venue TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'live',
		last_collected_at BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (venue, source)
	)`,
}
