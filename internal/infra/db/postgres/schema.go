package postgres

// Schema creates the redemptions table. Applied by EnsureSchema at start-up.
const Schema = `
CREATE TABLE IF NOT EXISTS redemptions (
    code        CHAR(8)     PRIMARY KEY,
    email       TEXT        NOT NULL,
    redeemed_at TIMESTAMPTZ NOT NULL,
    campaign    TEXT        NOT NULL,
    website     TEXT        NOT NULL DEFAULT '',
    first_name  TEXT        NOT NULL DEFAULT '',
    last_name   TEXT        NOT NULL DEFAULT '',
    phone       TEXT        NOT NULL DEFAULT '',
    metadata    JSONB       NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS redemptions_campaign_email_idx ON redemptions (campaign, lower(email));
`
