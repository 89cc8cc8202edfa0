package layout

import "time"

// Epoch is the reference instant the three packed inode timestamps
// count from. The source program subtracted a hardcoded +15 hour
// offset before packing local time, a deployment-specific kludge; this
// rewrite stores UTC relative to a fixed epoch and formats for display
// instead, keeping the on-disk field width and bit layout unchanged.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// PackTime packs a UTC instant into the 32-bit layout used by
// time_access / time_modify / time_change:
//
//	bits 0-5   year since Epoch.Year() (0-63)
//	bits 6-9   month (1-12)
//	bits 10-14 day (1-31)
//	bits 15-19 hour (0-23)
//	bits 20-25 minute (0-59)
//	bits 26-31 second (0-59)
func PackTime(t time.Time) uint32 {
	t = t.UTC()
	year := uint32(t.Year() - Epoch.Year())
	month := uint32(t.Month())
	day := uint32(t.Day())
	hour := uint32(t.Hour())
	minute := uint32(t.Minute())
	second := uint32(t.Second())

	var v uint32
	v |= (year & 0x3F) << 0
	v |= (month & 0xF) << 6
	v |= (day & 0x1F) << 10
	v |= (hour & 0x1F) << 15
	v |= (minute & 0x3F) << 20
	v |= (second & 0x3F) << 26
	return v
}

// UnpackTime reverses PackTime, returning a UTC time.Time.
func UnpackTime(v uint32) time.Time {
	year := int(v>>0) & 0x3F
	month := int(v>>6) & 0xF
	day := int(v>>10) & 0x1F
	hour := int(v>>15) & 0x1F
	minute := int(v>>20) & 0x3F
	second := int(v>>26) & 0x3F

	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}

	return time.Date(Epoch.Year()+year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

// Now packs the current instant.
func Now() uint32 {
	return PackTime(time.Now())
}
