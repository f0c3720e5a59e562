package http

type Error struct {
	Error string `json:"error"`
}

type TorrentInfo struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	ProgressPercent float64 `json:"progress_percent"`
	DownloadRate    int64   `json:"download_rate"`
	UploadRate      int64   `json:"upload_rate"`
	Complete        bool    `json:"complete"`
}
