// Package calendar exports stored events as an iCalendar feed.
package calendar
