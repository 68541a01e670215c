// Package query derives filtered, sorted read-only projections of the
// credential store for display. Computation is pure: it never mutates the
// store and is recomputed after any store mutation.
package query

import (
	"bytes"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/and161185/brokerlink/internal/model"
)

// StatusFilter buckets credentials by connection status. Connecting and Error
// credentials appear only under All; connected/disconnected are exact-status
// buckets, not complements of each other.
type StatusFilter string

const (
	FilterAll          StatusFilter = "all"
	FilterConnected    StatusFilter = "connected"
	FilterDisconnected StatusFilter = "disconnected"
)

// SortKey selects the projection ordering.
type SortKey string

const (
	SortName     SortKey = "name"
	SortClientID SortKey = "clientId"
	SortStatus   SortKey = "connectionStatus"
	SortExpiry   SortKey = "expiry"
)

// SortDir inverts the comparator.
type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// Params describes one projection.
type Params struct {
	Text   string
	Status StatusFilter
	Key    SortKey
	Dir    SortDir
}

// Compute filters and orders the given credentials. Text matches
// case-insensitively against display name or client ID as a substring.
// String keys use locale-aware collation; ties always break by ID ascending
// so equal keys stay stable across recomputations.
func Compute(creds []model.Credential, p Params) []model.Credential {
	text := strings.ToLower(strings.TrimSpace(p.Text))

	out := make([]model.Credential, 0, len(creds))
	for _, c := range creds {
		if !matchStatus(c, p.Status) {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(c.DisplayName), text) &&
			!strings.Contains(strings.ToLower(c.ClientID), text) {
			continue
		}
		out = append(out, c)
	}

	col := collate.New(language.Und)
	less := comparator(col, p.Key)
	sort.SliceStable(out, func(i, j int) bool {
		cmp := less(out[i], out[j])
		if p.Dir == Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
		return bytes.Compare(out[i].ID.Bytes(), out[j].ID.Bytes()) < 0
	})
	return out
}

func matchStatus(c model.Credential, f StatusFilter) bool {
	switch f {
	case FilterConnected:
		return c.ConnectionStatus == model.StatusConnected
	case FilterDisconnected:
		return c.ConnectionStatus == model.StatusDisconnected
	default:
		return true
	}
}

func comparator(col *collate.Collator, key SortKey) func(a, b model.Credential) int {
	switch key {
	case SortClientID:
		return func(a, b model.Credential) int {
			return col.CompareString(a.ClientID, b.ClientID)
		}
	case SortStatus:
		return func(a, b model.Credential) int {
			return col.CompareString(string(a.ConnectionStatus), string(b.ConnectionStatus))
		}
	case SortExpiry:
		return func(a, b model.Credential) int {
			switch {
			case a.ExpiresAt.Before(b.ExpiresAt):
				return -1
			case a.ExpiresAt.After(b.ExpiresAt):
				return 1
			default:
				return 0
			}
		}
	default: // SortName
		return func(a, b model.Credential) int {
			return col.CompareString(a.DisplayName, b.DisplayName)
		}
	}
}
