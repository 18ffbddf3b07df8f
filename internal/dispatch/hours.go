package dispatch

import (
	"time"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// withinBusinessHours reports whether now falls inside the configured
// window. An unconfigured or disabled window always passes. A close
// time before the open time is treated as a window spanning midnight.
func withinBusinessHours(bh *model.BusinessHours, now time.Time) bool {
	if bh == nil || !bh.Enabled || bh.Open == "" || bh.Close == "" {
		return true
	}

	loc := time.UTC
	if bh.Timezone != "" {
		if l, err := time.LoadLocation(bh.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)

	if len(bh.Days) > 0 {
		ok := false
		for _, d := range bh.Days {
			if local.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	open, err1 := time.Parse("15:04", bh.Open)
	close, err2 := time.Parse("15:04", bh.Close)
	if err1 != nil || err2 != nil {
		return true
	}

	minutes := local.Hour()*60 + local.Minute()
	openMin := open.Hour()*60 + open.Minute()
	closeMin := close.Hour()*60 + close.Minute()

	if openMin <= closeMin {
		return minutes >= openMin && minutes < closeMin
	}
	// Overnight window, e.g. 22:00-06:00.
	return minutes >= openMin || minutes < closeMin
}
