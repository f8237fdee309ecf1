package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "quackamole-relay",
	Level: hclog.LevelFromString("INFO"),
})
