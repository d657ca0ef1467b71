package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/conduit/pkg/domain"
)

func connectorID(nodeID string, kind domain.ConnectorKind, n int) string {
	return fmt.Sprintf("%s:%s_%d", nodeID, kind, n)
}

func paramConnectorID(nodeID string, kind domain.ConnectorKind, param string) string {
	return fmt.Sprintf("%s:%s_%s", nodeID, kind, param)
}

// connectorLess orders connector ids, comparing numeric suffixes by value.
func connectorLess(a, b string) bool {
	pa, na, okA := splitIndex(a)
	pb, nb, okB := splitIndex(b)
	if okA && okB && pa == pb {
		return na < nb
	}
	return a < b
}

func splitIndex(id string) (string, int, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return id, 0, false
	}
	return id[:i], n, true
}
