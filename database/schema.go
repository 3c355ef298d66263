package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT NOT NULL AUTO_INCREMENT,
		username VARCHAR(64) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		reputation_score INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_users_username (username),
		UNIQUE KEY uq_users_email (email)
	)`,
	`CREATE TABLE IF NOT EXISTS incident_types (
		id INT NOT NULL AUTO_INCREMENT,
		type_name VARCHAR(32) NOT NULL,
		icon_url VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (id),
		UNIQUE KEY uq_incident_types_name (type_name)
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id BIGINT NOT NULL AUTO_INCREMENT,
		user_id BIGINT NOT NULL,
		type_id INT NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		description TEXT,
		status ENUM('active', 'removed') NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NULL,
		PRIMARY KEY (id),
		KEY idx_reports_status_expires (status, expires_at),
		KEY idx_reports_created (created_at),
		CONSTRAINT fk_reports_user FOREIGN KEY (user_id) REFERENCES users (id),
		CONSTRAINT fk_reports_type FOREIGN KEY (type_id) REFERENCES incident_types (id)
	)`,
	`CREATE TABLE IF NOT EXISTS votes (
		id BIGINT NOT NULL AUTO_INCREMENT,
		report_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		vote_type ENUM('keep', 'remove') NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_votes_report_user (report_id, user_id),
		CONSTRAINT fk_votes_report FOREIGN KEY (report_id) REFERENCES reports (id) ON DELETE CASCADE,
		CONSTRAINT fk_votes_user FOREIGN KEY (user_id) REFERENCES users (id)
	)`,
}

// seedIncidentTypes is idempotent: re-running leaves existing rows alone.
var seedIncidentTypes = []string{"POLICE", "ACCIDENT", "POTHOLE", "TRAFFIC_JAM"}

// InitSchema creates the tables and seeds the incident type lookup.
func InitSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	for _, name := range seedIncidentTypes {
		if _, err := db.Exec(
			`INSERT IGNORE INTO incident_types (type_name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("seeding incident type %s: %w", name, err)
		}
	}
	log.Info("database schema initialized")
	return nil
}
