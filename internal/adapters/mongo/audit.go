package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserCode  string    `bson:"user_code"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action, userCode string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserCode:  userCode,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogSale(ctx context.Context, userCode string, sale domain.Sale) error {
	data := map[string]interface{}{
		"sale_id":        sale.ID,
		"customer":       sale.CustomerName,
		"total":          sale.Total,
		"payment_method": sale.PaymentMethod,
		"item_count":     len(sale.Items),
	}
	return a.LogEvent(ctx, "sale.completed", userCode, data)
}

func (a *AuditLogger) LogDrawerOpen(ctx context.Context, userCode string, session domain.CashDrawerSession) error {
	data := map[string]interface{}{
		"session_id":      session.ID,
		"opening_balance": session.OpeningBalance,
		"reason":          session.OpeningReason,
	}
	return a.LogEvent(ctx, "drawer.opened", userCode, data)
}

func (a *AuditLogger) LogDrawerDeposit(ctx context.Context, userCode string, sessionID uuid.UUID, dep domain.Deposit) error {
	data := map[string]interface{}{
		"session_id": sessionID,
		"deposit_id": dep.ID,
		"amount":     dep.Amount,
		"notes":      dep.Notes,
	}
	return a.LogEvent(ctx, "drawer.deposit", userCode, data)
}

func (a *AuditLogger) LogDrawerClose(ctx context.Context, userCode string, session domain.CashDrawerSession, discrepancy float64) error {
	data := map[string]interface{}{
		"session_id":      session.ID,
		"opening_balance": session.OpeningBalance,
		"closing_balance": session.ClosingBalance,
		"discrepancy":     discrepancy,
	}
	return a.LogEvent(ctx, "drawer.closed", userCode, data)
}

func (a *AuditLogger) LogWaiverSigned(ctx context.Context, guest domain.Guest) error {
	data := map[string]interface{}{
		"guest_id":   guest.ID,
		"guest_name": guest.Name,
		"signed_on":  guest.WaiverSignedOn.Format(time.RFC3339),
		"is_minor":   guest.IsMinor(time.Now()),
		"group_code": guest.GroupCode,
	}
	return a.LogEvent(ctx, "waiver.signed", guest.Phone, data)
}
