package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/google/uuid"
)

// TorrentUUID identifies a torrent across daemon restarts. It is derived from
// the info hash and the time the torrent was added, never from the numeric id.
type TorrentUUID string

var torrentNamespace = uuid.MustParse("6b1d3c2e-5f0a-4c8e-9a47-2f3e8d1c7b90")

// NewTorrentUUID returns a name-based (v5) UUID over the normalized hash and
// the added timestamp in whole seconds. Two torrents only share a UUID if the
// daemon reports the same hash and added date for both.
func NewTorrentUUID(hash string, addedAt time.Time) TorrentUUID {
	var added int64
	if !addedAt.IsZero() {
		added = addedAt.Unix()
	}
	key := NormalizeInfoHash(hash) + "/" + strconv.FormatInt(added, 10)
	return TorrentUUID(uuid.NewSHA1(torrentNamespace, []byte(key)).String())
}

// NormalizeInfoHash lowercases a hex v1 info hash. Values that are not a valid
// 40 character hex hash are only trimmed and lowercased.
func NormalizeInfoHash(raw string) string {
	raw = strings.TrimSpace(raw)
	var h metainfo.Hash
	if err := h.FromHexString(raw); err == nil {
		return h.HexString()
	}
	return strings.ToLower(raw)
}
