package version

import "fmt"

// Заполняются через -ldflags "-X github.com/vladislavdragonenkov/meenava/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// Version возвращает только номер сборки.
func Version() string { return version }

// ClientID формирует идентификатор клиента для внешних систем (Kafka, Redis).
func ClientID(component string) string {
	if component == "" {
		return "meenava-" + version
	}
	return "meenava-" + component + "-" + version
}

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
