package http

import (
	"sync/atomic"
	"time"
)

// TimeFormat is the HTTP date format (RFC 7231 IMF-fixdate).
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type cachedDate struct {
	unix  int64
	value []byte
}

var serverDate atomic.Pointer[cachedDate]

// appendDate appends the current HTTP date. The formatted value is reused
// for every response within the same second.
func appendDate(b []byte, now time.Time) []byte {
	sec := now.Unix()
	if d := serverDate.Load(); d != nil && d.unix == sec {
		return append(b, d.value...)
	}
	d := &cachedDate{unix: sec, value: now.UTC().AppendFormat(nil, TimeFormat)}
	serverDate.Store(d)
	return append(b, d.value...)
}
