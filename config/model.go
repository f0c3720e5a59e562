package config

// Root is the main yaml config object
type Root struct {
	Telegram *Telegram   `yaml:"telegram"`
	Client   *Client     `yaml:"client"`
	DB       *DB         `yaml:"db"`
	Schedule *Schedule   `yaml:"schedule"`
	HTTP     *HTTPGlobal `yaml:"http,omitempty"`
	Log      *Log        `yaml:"log"`
}

type Log struct {
	Debug      bool   `yaml:"debug"`
	MaxBackups int    `yaml:"max_backups"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	Path       string `yaml:"path"`
}

type Telegram struct {
	Token string `yaml:"token"`
	// AllowChat is the static access policy. Read once at startup, never
	// mutated afterwards.
	AllowChat []*AllowChat `yaml:"allow_chat"`
}

// AllowChat is a single policy entry. TorrentPermission is "personal" or
// "all"; Notify is optional and takes the same values; AllowCategory
// restricts the categories offered at add-time (absent = unrestricted).
type AllowChat struct {
	TelegramID        int64    `yaml:"telegram_id"`
	TorrentPermission string   `yaml:"torrent_permission"`
	Notify            string   `yaml:"notify,omitempty"`
	AllowCategory     []string `yaml:"allow_category,omitempty"`
}

type Client struct {
	Type     string        `yaml:"type"`
	Address  string        `yaml:"address"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  int           `yaml:"timeout,omitempty"`
	Paths    []*ClientPath `yaml:"path"`
}

// ClientPath maps a user-facing category label to a download directory on
// the torrent daemon host.
type ClientPath struct {
	Category string `yaml:"category"`
	Dir      string `yaml:"dir"`
}

type DB struct {
	Path string `yaml:"path"`
}

type Schedule struct {
	CheckPeriod int `yaml:"check_period,omitempty"`
}

type HTTPGlobal struct {
	Port int    `yaml:"port"`
	IP   string `yaml:"ip"`
}

const (
	ClientTransmission = "transmission"
	ClientQBittorrent  = "qbittorrent"
)

const dbFolder = "./torrent-telegram-bot-data/db"

func AddDefaults(r *Root) *Root {
	if r.Client == nil {
		r.Client = &Client{}
	}

	if r.Client.Type == "" {
		r.Client.Type = ClientQBittorrent
	}

	if r.Client.Address == "" {
		r.Client.Address = "localhost"
	}

	if r.Client.Port == 0 {
		if r.Client.Type == ClientTransmission {
			r.Client.Port = 9091
		} else {
			r.Client.Port = 8080
		}
	}

	if r.Client.Timeout == 0 {
		r.Client.Timeout = 30
	}

	if r.DB == nil {
		r.DB = &DB{}
	}

	if r.DB.Path == "" {
		r.DB.Path = dbFolder
	}

	if r.Schedule == nil {
		r.Schedule = &Schedule{}
	}

	if r.Schedule.CheckPeriod == 0 {
		r.Schedule.CheckPeriod = 60
	}

	if r.HTTP != nil && r.HTTP.IP == "" {
		r.HTTP.IP = "0.0.0.0"
	}

	if r.Log == nil {
		r.Log = &Log{}
	}

	return r
}
