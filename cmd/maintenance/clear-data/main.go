package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/parkpass/ticketing-backend/internal/config"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/sirupsen/logrus"
)

// transactionalTables hold bookings, carts and their payment history.
// Catalog, pricing and slot inventory are left untouched.
var transactionalTables = []string{
	"payment_audits",
	"payment_attempts",
	"booking_addons",
	"bookings",
	"cart_items",
	"carts",
}

func main() {
	var dbURLFlag string
	var withSlots bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&withSlots, "with-slots", false, "also clear slots and combo_slots")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		Driver:             os.Getenv("DATABASE_DRIVER"),
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}

	logger := logrus.New()
	db, err := database.NewConnection(dbCfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tables := transactionalTables
	if withSlots {
		tables = append(tables, "slots", "combo_slots")
	}

	fmt.Println("Connected to database. Truncating tables...")

	truncateSQL := "TRUNCATE TABLE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE"

	if _, err := db.Exec(truncateSQL); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
