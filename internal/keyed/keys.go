// Package keyed implements the domain stores over a keyedstore.Store, using a
// single flat key space:
//
//	ADMIN#<principal_id>                         platform-admin marker
//	TREE#<tree_id>#GRANT#<principal_id>          grant
//	TREE#<tree_id>#LOG#<timestamp>#<token>       activity entry
//	INVITE#<invitation_id>                       invitation
//
// Records are stored as JSON. Conditional writes compare the stored bytes
// against a re-marshal of the previously read record; all writers marshal the
// same way, so the encoding is canonical.
package keyed

import "time"

const (
	treePrefix   = "TREE#"
	invitePrefix = "INVITE#"
	adminPrefix  = "ADMIN#"
)

// logTimeLayout is fixed-width so lexicographic key order matches
// chronological order (RFC3339Nano trims trailing zeros and would not).
const logTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func grantKey(treeID, principalID string) string {
	return treePrefix + treeID + "#GRANT#" + principalID
}

func grantPrefix(treeID string) string {
	return treePrefix + treeID + "#GRANT#"
}

func logKey(treeID string, ts time.Time, token string) string {
	return logPrefix(treeID) + ts.UTC().Format(logTimeLayout) + "#" + token
}

func logPrefix(treeID string) string {
	return treePrefix + treeID + "#LOG#"
}

func logTimeBound(treeID string, ts time.Time) string {
	return logPrefix(treeID) + ts.UTC().Format(logTimeLayout)
}

func inviteKey(id string) string {
	return invitePrefix + id
}

func adminKey(principalID string) string {
	return adminPrefix + principalID
}
