package activity

import "time"

// ListOptions filters and pages an audit listing. Cursor is the opaque
// continuation value returned by a previous call; listing restarts after it.
type ListOptions struct {
	From   time.Time
	To     time.Time
	Limit  int
	Cursor string
}
