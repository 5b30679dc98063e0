package configuration

import (
	"encoding/json"
	"os"
)

type MongoConfig struct {
	Uri                string `json:"uri"`
	Database           string `json:"database"`
	MessagesCollection string `json:"messagesCollection"`
	TicketsCollection  string `json:"ticketsCollection"`
	CountersCollection string `json:"countersCollection"`
	SocketRoute        string `json:"socketRoute"`
}

type ServerConfig struct {
	AppPort    int `json:"app_port"`
	SocketPort int `json:"socket_port"`
}

type HeartbeatConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	MissLimit       int `json:"miss_limit"`
}

type Config struct {
	ChatDatabase MongoConfig     `json:"mongo"`
	Server       ServerConfig    `json:"server"`
	Heartbeat    HeartbeatConfig `json:"heartbeat"`
}

func LoadConfig(config_path string) (*Config, error) {
	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
