package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber builds a human-facing order number: ORD, the UTC timestamp
// to the second, then eight upper-case hex characters.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD" + now.UTC().Format("20060102150405") + suffix
}
