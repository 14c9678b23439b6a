package redisx

import "fmt"

const ns = "rehearsal:v1"

// KeySnapshot is the cache key of one day's conflict snapshot for a
// resource kind.
func KeySnapshot(resource, date string) string {
	return fmt.Sprintf("%s:snapshot:%s:%s", ns, resource, date)
}

func KeyIdemBooking(ownerID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%d:%s", ns, ownerID, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelBookingsChanged() string {
	return ns + ":bookings:changed"
}
