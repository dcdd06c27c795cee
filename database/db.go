package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/alafleur/finboost-payouts/cache"
	"github.com/alafleur/finboost-payouts/config"
)

// Package-level singleton so every component shares one connection pool.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	return GetDBConnection(configuration)
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}
	if err := createWinnerSelectionTable(db); err != nil {
		return nil, err
	}
	if err := createPayoutBatchTable(db); err != nil {
		return nil, err
	}
	if err := createPayoutBatchItemTable(db); err != nil {
		return nil, err
	}
	if err := createUserRewardTable(db); err != nil {
		return nil, err
	}
	if err := createCyclePayoutStatusTable(db); err != nil {
		return nil, err
	}
	return db, nil
}

// createPayoutBatchTable creates the payout_batches table. sender_batch_id is
// UNIQUE: that constraint is the storage-layer idempotency guard against two
// concurrent submissions of the same request.
func createPayoutBatchTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payout_batches (
			id SERIAL PRIMARY KEY,
			batch_id TEXT NOT NULL UNIQUE,
			cycle_id BIGINT NOT NULL,
			sender_batch_id TEXT NOT NULL UNIQUE,
			request_checksum TEXT NOT NULL,
			attempt INT NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'draft',
			paypal_batch_id TEXT,
			total_amount BIGINT NOT NULL DEFAULT 0,
			total_recipients INT NOT NULL DEFAULT 0,
			successful_count INT NOT NULL DEFAULT 0,
			failed_count INT NOT NULL DEFAULT 0,
			pending_count INT NOT NULL DEFAULT 0,
			admin_id BIGINT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating payout_batches table: %v", err)
	}
	return err
}

func createPayoutBatchItemTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payout_batch_items (
			id SERIAL PRIMARY KEY,
			item_id TEXT NOT NULL UNIQUE,
			batch_id TEXT NOT NULL REFERENCES payout_batches(batch_id) ON DELETE CASCADE,
			winner_selection_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			paypal_email TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			paypal_item_id TEXT,
			error_code TEXT,
			error_message TEXT,
			processed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating payout_batch_items table: %v", err)
	}
	return err
}

// createWinnerSelectionTable creates the cycle_winner_selections table. The
// rewards platform owns these rows; the payout core reads eligibility fields
// and writes back only payout_status, payout_final and notification_displayed.
func createWinnerSelectionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cycle_winner_selections (
			id BIGINT PRIMARY KEY,
			cycle_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			paypal_email TEXT,
			snapshot_email TEXT,
			payout_calculated BIGINT NOT NULL DEFAULT 0,
			payout_override BIGINT NOT NULL DEFAULT 0,
			payout_final BIGINT NOT NULL DEFAULT 0,
			payout_status TEXT NOT NULL DEFAULT 'pending',
			notification_displayed BOOLEAN NOT NULL DEFAULT FALSE
		)
	`)
	if err != nil {
		log.Printf("Error creating cycle_winner_selections table: %v", err)
	}
	return err
}

// createUserRewardTable creates the user_rewards table. batch_item_id is
// UNIQUE so re-running reconciliation can never double-create a reward.
func createUserRewardTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_rewards (
			id SERIAL PRIMARY KEY,
			reward_id TEXT NOT NULL UNIQUE,
			batch_item_id TEXT NOT NULL UNIQUE REFERENCES payout_batch_items(item_id),
			user_id BIGINT NOT NULL,
			cycle_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating user_rewards table: %v", err)
	}
	return err
}

func createCyclePayoutStatusTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cycle_payout_status (
			cycle_id BIGINT PRIMARY KEY,
			payouts_completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMP
		)
	`)
	if err != nil {
		log.Printf("Error creating cycle_payout_status table: %v", err)
	}
	return err
}
