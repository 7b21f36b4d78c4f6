package mpesa

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

// nairobi is East Africa Time; Kenya observes no daylight saving.
var nairobi = time.FixedZone("EAT", 3*60*60)

// Timestamp formats t the way the gateway expects it in Password and Timestamp fields.
func Timestamp(t time.Time) string {
	return t.In(nairobi).Format(timestampLayout)
}

// Password derives the STK password: base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}
