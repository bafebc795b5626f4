package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    telegram_id BIGINT NOT NULL UNIQUE,
    username VARCHAR(255),
    first_name VARCHAR(255),
    last_name VARCHAR(255),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_usage_stats (
    user_id BIGINT PRIMARY KEY,
    analysis_count INT NOT NULL DEFAULT 0,
    post_generation_count INT NOT NULL DEFAULT 0,
    ideas_generation_count INT NOT NULL DEFAULT 0,
    reset_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    start_date DATETIME NOT NULL,
    end_date DATETIME NOT NULL,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    payment_id VARCHAR(128),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_subscriptions_user_end (user_id, end_date),
    INDEX idx_subscriptions_payment (payment_id)
);

CREATE TABLE IF NOT EXISTS channel_analysis (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    channel_name VARCHAR(255) NOT NULL,
    themes JSON NOT NULL,
    styles JSON NOT NULL,
    analyzed_posts_count INT NOT NULL DEFAULT 0,
    sample_posts JSON NOT NULL,
    best_posting_time VARCHAR(64),
    updated_at DATETIME NOT NULL,
    UNIQUE KEY uniq_user_channel (user_id, channel_name)
);

CREATE TABLE IF NOT EXISTS suggested_ideas (
    id CHAR(36) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    channel_name VARCHAR(255) NOT NULL,
    topic_idea TEXT NOT NULL,
    format_style VARCHAR(255) NOT NULL,
    relative_day INT NOT NULL,
    is_detailed TINYINT(1) NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    INDEX idx_ideas_user_channel (user_id, channel_name)
);

CREATE TABLE IF NOT EXISTS saved_posts (
    id CHAR(36) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    channel_name VARCHAR(255) NOT NULL,
    idea_id CHAR(36),
    topic_idea TEXT NOT NULL,
    format_style VARCHAR(255) NOT NULL,
    final_text TEXT NOT NULL,
    image_urls JSON NOT NULL,
    created_at DATETIME NOT NULL,
    INDEX idx_posts_user_channel (user_id, channel_name)
);

CREATE TABLE IF NOT EXISTS payments (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    provider VARCHAR(64) NOT NULL,
    provider_payment_charge_id VARCHAR(128),
    currency VARCHAR(8) NOT NULL,
    amount INT NOT NULL,
    status VARCHAR(16) NOT NULL,
    raw_payload TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_provider_charge (provider, provider_payment_charge_id)
)
`
