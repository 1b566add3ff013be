package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

// Stamp is the timestamp format used in report and export filenames.
func Stamp(t time.Time) string {
	return t.Format("20060102150405")
}
