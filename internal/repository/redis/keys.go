package redisrepo

import (
	"fmt"
	"net/url"

	"github.com/kirinyoku/airbook-go/internal/domain"
)

const ns = "airbook:v1"

func KeyFlight(flightID int64) string {
	return fmt.Sprintf("%s:flight:%d", ns, flightID)
}

// KeySearchGeneration holds a counter bumped whenever seat counts change.
// Search keys embed it, so one INCR retires every cached search at once.
func KeySearchGeneration() string {
	return ns + ":search:gen"
}

func KeySearch(gen int64, c domain.SearchCriteria) string {
	class := "any"
	if c.Class != nil {
		class = string(*c.Class)
	}
	return fmt.Sprintf("%s:search:%d:%s:%s:%s:%s:%d",
		ns, gen,
		url.QueryEscape(c.DepartureCity), url.QueryEscape(c.ArrivalCity),
		c.Date.UTC().Format("2006-01-02"), class, c.Passengers,
	)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}
