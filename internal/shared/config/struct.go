package config

type Struct struct {
	Rcon struct {
		Host           string `default:"localhost"`
		Port           int    `default:"21114"`
		Password       string `default:""`
		CommandTimeout int    `default:"10"` // seconds
		QueueBound     int    `default:"256"`
		KeepAliveIdle  int    `default:"30"` // seconds
	}
	LogSource struct {
		Type          string `default:"local"` // local, sftp, ftp
		FilePath      string `default:""`
		Host          string `default:""`
		Port          int    `default:"0"`
		Username      string `default:""`
		Password      string `default:""`
		PollFrequency int    `default:"2"` // seconds
		ReadFromStart bool   `default:"false"`
	}
	EventBus struct {
		QueueSize int `default:"1024"`
	}
	Valkey struct {
		Enabled  bool   `default:"false"`
		Host     string `default:"localhost"`
		Port     int    `default:"6379"`
		Password string `default:""`
		Database int    `default:"0"`
	}
	Log struct {
		Level string `default:"info"`
		File  string `default:""`
	}
	Debug struct {
		Pretty  bool `default:"true"`
		NoColor bool `default:"false"`
	}
}
