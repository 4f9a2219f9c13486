// Package pagination defines the opaque cursor tokens used to resume keyset
// queries. Tokens encode the sort key(s) of the last returned row; malformed
// tokens are client errors, never server errors.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrMalformedCursor = errors.New("malformed pagination cursor")

// ParsePatientToken parses the patient list cursor: the decimal id of the
// last returned patient. An empty token starts from the beginning.
func ParsePatientToken(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}

	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil || id < 0 {
		return 0, malformed("invalid patient cursor %q", token)
	}
	return id, nil
}

// PatientToken builds the next-page token from the last returned patient id.
func PatientToken(lastID int64) string {
	return strconv.FormatInt(lastID, 10)
}

// HistoryCursor is the composite cursor of the biometrics history: the
// (biometrics_id, test_date) pair of the last returned row, tuple-ordered.
type HistoryCursor struct {
	BiometricsID int64
	TestDate     time.Time
}

// Token encodes the cursor as URL-safe base64 of the JSON array
// [biometrics_id, test_date].
func (c HistoryCursor) Token() string {
	data, _ := json.Marshal([]any{c.BiometricsID, c.TestDate})
	return base64.RawURLEncoding.EncodeToString(data)
}

// ParseHistoryToken decodes a history token. An empty token starts from
// (0, epoch). Bad base64, bad JSON and wrong arity are all client errors.
func ParseHistoryToken(token string) (HistoryCursor, error) {
	if token == "" {
		return HistoryCursor{TestDate: time.Unix(0, 0).UTC()}, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return HistoryCursor{}, malformed("invalid history cursor encoding: %v", err)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return HistoryCursor{}, malformed("invalid history cursor payload: %v", err)
	}
	if len(parts) != 2 {
		return HistoryCursor{}, malformed("history cursor must hold exactly two elements, got %d", len(parts))
	}

	var c HistoryCursor
	if err := json.Unmarshal(parts[0], &c.BiometricsID); err != nil {
		return HistoryCursor{}, malformed("invalid history cursor id: %v", err)
	}
	if err := json.Unmarshal(parts[1], &c.TestDate); err != nil {
		return HistoryCursor{}, malformed("invalid history cursor date: %v", err)
	}
	return c, nil
}

func malformed(format string, args ...any) error {
	return errors.Join(fmt.Errorf(format, args...), ErrMalformedCursor)
}
