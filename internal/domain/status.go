package domain

type TorrentStatus string

const (
	TorrentStopped     TorrentStatus = "stopped"
	TorrentDownloading TorrentStatus = "downloading"
	TorrentSeeding     TorrentStatus = "seeding"
)
