package collab

import (
	"strconv"
	"strings"
)

// Shared-document key kinds. Node and connection entries carry the
// entity JSON and tombstone on delete; position entries carry a
// NodePosition so concurrent drags converge per node without rewriting
// the whole entity.
const (
	KindNode       = "node"
	KindConnection = "conn"
	KindPosition   = "pos"
)

func NodeKey(nodeID int64) string { return KindNode + ":" + strconv.FormatInt(nodeID, 10) }

func ConnectionKey(connectionID int64) string {
	return KindConnection + ":" + strconv.FormatInt(connectionID, 10)
}

func PositionKey(nodeID int64) string { return KindPosition + ":" + strconv.FormatInt(nodeID, 10) }

// SplitKey breaks a document key into its kind and entity id.
func SplitKey(key string) (kind string, id int64, ok bool) {
	kind, raw, found := strings.Cut(key, ":")
	if !found {
		return "", 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return kind, id, true
}
