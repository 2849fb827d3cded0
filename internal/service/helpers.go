package service

import (
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/billing"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperror.Validation(field, "must be a valid UUID")
	}
	return id, nil
}

// Money columns are decimal(18,4).
const (
	moneyScale         = 4
	moneyIntegerDigits = 14
)

var moneyCeiling = decimal.New(1, moneyIntegerDigits)

// parseMoney parses a non-negative decimal amount that fits a money column.
// An empty string is zero.
func parseMoney(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.Validation(field, "must be a decimal number")
	}
	if amount.IsNegative() {
		return decimal.Zero, apperror.Validation(field, "must not be negative")
	}
	if !amount.Equal(amount.Truncate(moneyScale)) {
		return decimal.Zero, apperror.Validation(field, "must have at most 4 decimal places")
	}
	if amount.GreaterThanOrEqual(moneyCeiling) {
		return decimal.Zero, apperror.Validation(field, "must have at most 14 integer digits")
	}
	return amount, nil
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperror.Validation(field, "must be a date in YYYY-MM-DD format")
	}
	return billing.DateOnly(t), nil
}

func validateEmail(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperror.Validation(field, "is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", apperror.Validation(field, "must be a valid email address")
	}
	return raw, nil
}

func requireText(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperror.Validation(field, "is required")
	}
	return raw, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func actorOrSystem(actorID string) string {
	if strings.TrimSpace(actorID) == "" {
		return model.SystemActor
	}
	return actorID
}

func auditDetails(fields map[string]interface{}) string {
	details, _ := json.Marshal(fields)
	return string(details)
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func utcNow() time.Time {
	return time.Now().UTC()
}
