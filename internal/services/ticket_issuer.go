package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// QRTicketIssuer mints the ticket reference encoded in a booking's QR code.
// Format: TKT-YYYYMMDDHHMMSS-XXXXXXXX
// Example: TKT-20251206143022-A1B2C3D4
type QRTicketIssuer struct {
	bookings BookingStore
	logger   *logrus.Logger
	now      func() time.Time
}

// NewQRTicketIssuer creates a new QRTicketIssuer
func NewQRTicketIssuer(bookings BookingStore, logger *logrus.Logger) *QRTicketIssuer {
	return &QRTicketIssuer{bookings: bookings, logger: logger, now: time.Now}
}

// Issue stores a ticket reference on b once. Later calls return the stored one
// with minted=false.
func (i *QRTicketIssuer) Issue(ctx context.Context, b *models.Booking) (string, bool, error) {
	if b.TicketArtifactRef != nil {
		return *b.TicketArtifactRef, false, nil
	}

	ref, err := i.generate(ctx)
	if err != nil {
		return "", false, err
	}
	stored, err := i.bookings.SetTicketArtifact(ctx, b.ID, ref)
	if err != nil {
		return "", false, err
	}
	if !stored {
		// Another delivery attempt got there first
		current, err := i.bookings.GetByID(ctx, b.ID)
		if err != nil {
			return "", false, err
		}
		if current == nil || current.TicketArtifactRef == nil {
			return "", false, fmt.Errorf("booking %s has no ticket after conditional update", b.Ref)
		}
		return *current.TicketArtifactRef, false, nil
	}

	b.TicketArtifactRef = &ref
	i.logger.WithFields(logrus.Fields{
		"booking_ref": b.Ref,
		"ticket_ref":  ref,
	}).Info("Ticket issued")
	return ref, true, nil
}

func (i *QRTicketIssuer) generate(ctx context.Context) (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		ref := fmt.Sprintf("TKT-%s-%s", i.now().Format("20060102150405"), strings.ToUpper(hex.EncodeToString(randomBytes)))

		exists, err := i.bookings.TicketArtifactExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique ticket reference after 10 attempts")
}
