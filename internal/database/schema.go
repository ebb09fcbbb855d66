package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS miniapp_tasks (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    task_id VARCHAR(128) NOT NULL UNIQUE,
    user_id VARCHAR(64) NOT NULL,
    tpl_name VARCHAR(255),
    prompt TEXT,
    image_size VARCHAR(16) NOT NULL DEFAULT '1:1',
    state VARCHAR(16) NOT NULL DEFAULT 'waiting',
    result_url TEXT,
    cost INT NOT NULL DEFAULT 10,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_user_state (user_id, state)
)`,

	`CREATE TABLE IF NOT EXISTS generations (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    prompt TEXT,
    generation_type VARCHAR(32) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,

	// subscriptions is owned by the bot; created here only so a standalone
	// local setup has the table the ledger reads and increments.
	`CREATE TABLE IF NOT EXISTS subscriptions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    generations_limit INT NOT NULL DEFAULT 0,
    generations_used INT NOT NULL DEFAULT 0,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    end_date TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_user_active (user_id, is_active)
)`,
}
