package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/parkpass/ticketing-backend/internal/config"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/sirupsen/logrus"
)

// payment-trail prints the payment audit trail of a booking or cart reference.
//
//	go run ./cmd/payment-trail -ref BK-20250601-7QX2MD
func main() {
	var ref string
	flag.StringVar(&ref, "ref", "", "booking or cart reference (BK-... or CT-...)")
	flag.Parse()
	if ref == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	audits, err := database.NewPaymentAuditRepository(db.DB, logger).ListByReference(ctx, ref)
	if err != nil {
		log.Fatalf("Failed to load audit trail: %v", err)
	}
	if len(audits) == 0 {
		fmt.Printf("No payment events for %s\n", ref)
		return
	}

	fmt.Printf("Payment trail for %s (%d events)\n", ref, len(audits))
	fmt.Println("----------------------------------------------")
	for _, a := range audits {
		line := fmt.Sprintf("%s | %-28s | %-15s", a.CreatedAt.Format(time.RFC3339), a.EventType, a.EventSource)
		if a.Amount.Valid {
			line += " | " + a.Amount.Decimal.StringFixed(2)
		}
		if a.GatewayCode != nil {
			line += " | code=" + *a.GatewayCode
		}
		if a.IsDuplicate {
			line += " | duplicate"
		}
		if a.ErrorMessage != nil {
			line += " | error=" + *a.ErrorMessage
		}
		fmt.Println(line)
	}
	fmt.Println("----------------------------------------------")
}
