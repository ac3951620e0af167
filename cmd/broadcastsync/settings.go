package main

import "strings"

type Settings struct {
	Host        string  `env:"HOST,default=127.0.0.1"`
	Port        int     `env:"PORT,default=8000"`
	BasePath    string  `env:"BASE_PATH,default=/broadcaster"`
	JWTSecret   string  `env:"JWT_SECRET,required=true"`
	APIKeys     string  `env:"API_KEYS"`
	LogEncoding string  `env:"LOG_ENCODING,default=console"`
	LogLevel    string  `env:"LOG_LEVEL,default=info"`
	Origins     string  `env:"ALLOWED_ORIGINS"`
	PushRate    float64 `env:"PUSH_RATE,default=50"`
	PushBurst   int     `env:"PUSH_BURST,default=100"`
	SendBuffer  int     `env:"SEND_BUFFER,default=256"`
}

// APIKeyList returns the comma separated API_KEYS.
func (s Settings) APIKeyList() []string {
	return splitList(s.APIKeys)
}

// OriginList returns the comma separated ALLOWED_ORIGINS.
func (s Settings) OriginList() []string {
	return splitList(s.Origins)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}

	return items
}
