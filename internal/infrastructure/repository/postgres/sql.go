package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isConnectionError reports failures that say nothing about the statement:
// dropped connections, pq class 08 and network errors.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// storeError wraps connection failures with snapshot.ErrStoreUnavailable.
func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %v", op, snapshot.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// marshalJSON encodes a jsonb column value. Nil values, including typed nil
// maps, are stored as an empty object.
func marshalJSON(value any) (string, error) {
	if value == nil {
		return "{}", nil
	}
	raw, err := jsonAPI.Marshal(value)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return "{}", nil
	}
	return string(raw), nil
}
