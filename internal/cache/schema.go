package cache

// Schema contains the SQL schema for the persistent result cache
const Schema = `
CREATE TABLE IF NOT EXISTS otp_results (
    key TEXT PRIMARY KEY,
    otp TEXT NOT NULL,
    folder TEXT NOT NULL,
    subject TEXT,
    fetch_time_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_otp_results_expires_at ON otp_results(expires_at);
`
